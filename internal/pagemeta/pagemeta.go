// Package pagemeta resolves redirect URLs declared in the checkout page's
// meta tags.
package pagemeta

import (
	"net/url"
	"strings"
)

// Meta tag names.
const (
	SuccessURL       = "next-success-url"
	NextURL          = "next-next-url"
	FailureURL       = "next-failure-url"
	UpsellAcceptURL  = "next-upsell-accept-url"
	UpsellDeclineURL = "next-upsell-decline-url"
)

// FailureFlag is the query parameter added to the current URL when no
// failure page is declared.
const FailureFlag = "payment_failed"

// Meta maps meta tag names to their content.
type Meta map[string]string

// URLs are the resolved redirect targets.
type URLs struct {
	Success       string
	Failure       string
	UpsellAccept  string
	UpsellDecline string
}

// Resolve applies the fallback chain:
//
//	success:        next-success-url → next-next-url → <origin>/success
//	failure:        next-failure-url → current URL + ?payment_failed=true
//	upsell accept:  next-upsell-accept-url → success
//	upsell decline: next-upsell-decline-url → success
//
// Relative values are made absolute against current.
func Resolve(meta Meta, current *url.URL) URLs {
	var out URLs

	if u, ok := first(meta, current, SuccessURL, NextURL); ok {
		out.Success = u
	} else {
		out.Success = Origin(current) + "/success"
	}

	if u, ok := first(meta, current, FailureURL); ok {
		out.Failure = u
	} else {
		out.Failure = withQuery(current, FailureFlag, "true")
	}

	out.UpsellAccept = out.Success
	if u, ok := first(meta, current, UpsellAcceptURL); ok {
		out.UpsellAccept = u
	}
	out.UpsellDecline = out.Success
	if u, ok := first(meta, current, UpsellDeclineURL); ok {
		out.UpsellDecline = u
	}
	return out
}

func first(meta Meta, current *url.URL, names ...string) (string, bool) {
	for _, name := range names {
		if u, ok := Absolute(meta[name], current); ok {
			return u, true
		}
	}
	return "", false
}

// Absolute resolves raw against current. Empty or unparsable values report
// false.
func Absolute(raw string, current *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() || current == nil {
		return ref.String(), true
	}
	return current.ResolveReference(ref).String(), true
}

// Origin returns scheme://host of u, or "" for a nil URL.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// WithRefID appends ref_id to target.
func WithRefID(target, refID string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return withQuery(u, "ref_id", refID)
}

func withQuery(u *url.URL, key, value string) string {
	if u == nil {
		return ""
	}
	c := *u
	q := c.Query()
	q.Set(key, value)
	c.RawQuery = q.Encode()
	return c.String()
}
