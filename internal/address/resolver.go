// Package address resolves the country → state/province → postal-pattern
// cascade. Lookups for the same country are collapsed while in flight, and
// each country's configuration is cached for the lifetime of the resolver.
package address

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// ErrNoCountry is returned when a lookup names no country.
var ErrNoCountry = errors.New("country code is required")

// Source fetches countries and per-country state lists, typically from the
// commerce API.
type Source interface {
	Countries(ctx context.Context) ([]model.Country, error)
	States(ctx context.Context, countryCode string) (model.StatesResult, error)
}

// Config tunes the resolver.
type Config struct {
	// ClearAfter is how long a resolved state list keeps answering repeat
	// requests before the next request fetches again.
	ClearAfter time.Duration
	// FetchTimeout bounds one shared lookup.
	FetchTimeout time.Duration
}

const (
	defaultClearAfter   = time.Second
	defaultFetchTimeout = 10 * time.Second
)

type recentEntry struct {
	result  model.StatesResult
	expires time.Time
}

// Resolver answers country, state and postal-code questions.
type Resolver struct {
	src    Source
	cfg    Config
	group  singleflight.Group
	now    func() time.Time
	logger *log.Logger

	mu        sync.Mutex
	countries []model.Country
	recent    map[string]recentEntry
	configs   map[string]model.CountryConfig
	patterns  map[string]*regexp.Regexp
}

// NewResolver returns a Resolver backed by src.
//
// It panics if src is nil. Non-positive durations in cfg fall back to
// defaults.
func NewResolver(src Source, cfg Config, logger *log.Logger) *Resolver {
	if src == nil {
		panic("address.NewResolver: nil source")
	}
	if cfg.ClearAfter <= 0 {
		cfg.ClearAfter = defaultClearAfter
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		src:      src,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
		recent:   make(map[string]recentEntry),
		configs:  make(map[string]model.CountryConfig),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// NormalizeCode canonicalizes a country code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetCountries returns the selectable countries. The list is fetched once.
func (r *Resolver) GetCountries(ctx context.Context) ([]model.Country, error) {
	r.mu.Lock()
	if r.countries != nil {
		out := append([]model.Country(nil), r.countries...)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	v, err := r.shared(ctx, "countries", func(ctx context.Context) (any, error) {
		return r.src.Countries(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	countries := v.([]model.Country)

	r.mu.Lock()
	r.countries = countries
	r.mu.Unlock()
	return append([]model.Country(nil), countries...), nil
}

// GetStatesFor returns the state list and configuration of a country.
// Concurrent calls for the same code share one lookup.
func (r *Resolver) GetStatesFor(ctx context.Context, countryCode string) (model.StatesResult, error) {
	code := NormalizeCode(countryCode)
	if code == "" {
		return model.StatesResult{}, ErrNoCountry
	}

	if res, ok := r.recentResult(code); ok {
		return res, nil
	}

	v, err := r.shared(ctx, "states:"+code, func(ctx context.Context) (any, error) {
		res, err := r.src.States(ctx, code)
		if err != nil {
			return nil, err
		}
		if res.CountryConfig.Code == "" {
			res.CountryConfig.Code = code
		}
		r.remember(code, res)
		return res, nil
	})
	if err != nil {
		return model.StatesResult{}, fmt.Errorf("load states for %s: %w", code, err)
	}
	return copyResult(v.(model.StatesResult)), nil
}

// shared runs fn once per key among concurrent callers. The lookup itself
// is detached from the first caller's cancellation so that one abandoned
// caller does not fail the others; each caller still stops waiting when its
// own ctx is done.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) remember(code string, res model.StatesResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[code] = res.CountryConfig
	r.recent[code] = recentEntry{result: res, expires: r.now().Add(r.cfg.ClearAfter)}
}

func (r *Resolver) recentResult(code string) (model.StatesResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, e := range r.recent {
		if !now.Before(e.expires) {
			delete(r.recent, k)
		}
	}
	e, ok := r.recent[code]
	if !ok {
		return model.StatesResult{}, false
	}
	return copyResult(e.result), true
}

func copyResult(res model.StatesResult) model.StatesResult {
	res.States = append([]model.State(nil), res.States...)
	return res
}

// Config returns the cached configuration of a country, if it was fetched.
func (r *Resolver) Config(countryCode string) (model.CountryConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[NormalizeCode(countryCode)]
	return cfg, ok
}

// Configs returns every cached country configuration.
func (r *Resolver) Configs() map[string]model.CountryConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.CountryConfig, len(r.configs))
	for k, v := range r.configs {
		out[k] = v
	}
	return out
}

// ValidatePostalCode checks value against the country's postal pattern. A
// country without a pattern, or with a pattern that does not compile,
// accepts any value.
func (r *Resolver) ValidatePostalCode(value, countryCode string, cfg *model.CountryConfig) bool {
	var pattern string
	if cfg != nil {
		pattern = cfg.PostcodePattern
	} else if c, ok := r.Config(countryCode); ok {
		pattern = c.PostcodePattern
	}
	if pattern == "" {
		return true
	}

	re, err := r.compiled(pattern)
	if err != nil {
		r.logger.Printf("postal_pattern_invalid country=%s err=%v", NormalizeCode(countryCode), err)
		return true
	}

	value = strings.TrimSpace(value)
	return re.MatchString(value) || re.MatchString(strings.ToUpper(value))
}

func (r *Resolver) compiled(pattern string) (*regexp.Regexp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	r.patterns[pattern] = re
	return re, nil
}
