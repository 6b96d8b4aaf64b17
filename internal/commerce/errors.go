package commerce

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
)

// ResponseData is the error body returned by the commerce API. Only one of
// its members is usually set.
type ResponseData struct {
	Message             string          `json:"message,omitempty"`
	Detail              string          `json:"detail,omitempty"`
	Errors              map[string]any  `json:"errors,omitempty"`
	PaymentDetails      json.RawMessage `json:"payment_details,omitempty"`
	PaymentResponseCode string          `json:"payment_response_code,omitempty"`
}

// APIError is a non-2xx answer from the commerce API.
type APIError struct {
	Status       int
	ResponseData ResponseData
}

func (e *APIError) Error() string {
	if msg := e.Summary(); msg != "" {
		return fmt.Sprintf("commerce api status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("commerce api status %d", e.Status)
}

// Kind classifies the response for apperr. Rate limiting and auth failures
// win over body content; payment processor answers are told apart from
// plain validation failures.
func (e *APIError) Kind() string {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return apperr.KindRateLimited
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return apperr.KindUnauthorized
	case e.IsPaymentError():
		return apperr.KindPaymentProcessor
	case e.Status >= 500:
		return apperr.KindServerError
	default:
		return apperr.KindAPIValidation
	}
}

// IsPaymentError reports whether the processor declined the payment.
func (e *APIError) IsPaymentError() bool {
	return e.ResponseData.PaymentResponseCode != "" || e.PaymentMessage() != ""
}

// PaymentMessage extracts a readable message from payment_details, which
// the API sends either as a string or as an object with a message.
func (e *APIError) PaymentMessage() string {
	raw := e.ResponseData.PaymentDetails
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Detail
	}
	return ""
}

// Summary returns the best single human-readable message in the body.
func (e *APIError) Summary() string {
	d := e.ResponseData
	switch {
	case d.Message != "":
		return d.Message
	case d.Detail != "":
		return d.Detail
	case e.PaymentMessage() != "":
		return e.PaymentMessage()
	}
	if nfe := e.FieldErrors()["non_field_errors"]; nfe != "" {
		return nfe
	}
	return ""
}

// FieldErrors flattens the nested errors object into dotted paths, keeping
// the first message per path: {"shipping_address":{"first_name":["x"]}}
// becomes {"shipping_address.first_name":"x"}.
func (e *APIError) FieldErrors() map[string]string {
	out := make(map[string]string)
	flatten("", e.ResponseData.Errors, out)
	return out
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flatten(p, t[k], out)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if _, seen := out[prefix]; !seen && prefix != "" {
					out[prefix] = s
				}
				continue
			}
			flatten(prefix, item, out)
		}
	case string:
		if _, seen := out[prefix]; !seen && prefix != "" {
			out[prefix] = t
		}
	}
}

// SchemaError reports a payload that does not match the order schema. It
// is raised before any request is sent.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "order payload invalid: " + strings.Join(e.Problems, "; ")
}

func (e *SchemaError) Kind() string { return apperr.KindInputInvalid }

func (e *SchemaError) Unwrap() error { return apperr.ErrInputInvalid }
