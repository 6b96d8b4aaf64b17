package address

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// fakeSource answers from fixed tables. A per-country gate, when set, holds
// the lookup until the test closes it.
type fakeSource struct {
	mu         sync.Mutex
	states     map[string]model.StatesResult
	gates      map[string]chan struct{}
	stateCalls map[string]*atomic.Int64
	countries  atomic.Int64
	err        error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		states: map[string]model.StatesResult{
			"US": {
				States:        []model.State{{Code: "CA", Name: "California"}, {Code: "NY", Name: "New York"}},
				CountryConfig: model.CountryConfig{Code: "US", StateLabel: "State", StateRequired: true, PostcodePattern: `^\d{5}$`},
			},
			"CA": {
				States:        []model.State{{Code: "ON", Name: "Ontario"}},
				CountryConfig: model.CountryConfig{Code: "CA", StateLabel: "Province", StateRequired: true},
			},
			"GB": {
				CountryConfig: model.CountryConfig{Code: "GB", PostcodePattern: `^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`},
			},
		},
		gates:      make(map[string]chan struct{}),
		stateCalls: make(map[string]*atomic.Int64),
	}
}

func (f *fakeSource) gate(code string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[code] = ch
	return ch
}

func (f *fakeSource) calls(code string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.stateCalls[code]; ok {
		return c.Load()
	}
	return 0
}

func (f *fakeSource) Countries(context.Context) ([]model.Country, error) {
	f.countries.Add(1)
	return []model.Country{{Code: "US", Name: "United States"}, {Code: "GB", Name: "United Kingdom"}}, nil
}

func (f *fakeSource) States(ctx context.Context, code string) (model.StatesResult, error) {
	f.mu.Lock()
	c, ok := f.stateCalls[code]
	if !ok {
		c = &atomic.Int64{}
		f.stateCalls[code] = c
	}
	gate := f.gates[code]
	res := f.states[code]
	err := f.err
	f.mu.Unlock()

	c.Add(1)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.StatesResult{}, ctx.Err()
		}
	}
	return res, err
}

func TestNewResolverNilSourcePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil source")
		}
	}()
	NewResolver(nil, Config{}, nil)
}

func TestGetCountriesFetchesOnce(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	r := NewResolver(src, Config{}, nil)

	for i := 0; i < 3; i++ {
		got, err := r.GetCountries(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 countries, got %d", len(got))
		}
	}
	if n := src.countries.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestGetStatesForCollapsesConcurrentRequests(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	gate := src.gate("US")
	r := NewResolver(src, Config{ClearAfter: time.Minute}, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			res, err := r.GetStatesFor(context.Background(), "us")
			if err == nil && len(res.States) != 2 {
				err = errors.New("unexpected state list")
			}
			errs <- err
		}()
	}

	// Let every caller join the in-flight lookup before releasing it.
	deadline := time.After(2 * time.Second)
	for src.calls("US") == 0 {
		select {
		case <-deadline:
			t.Fatal("lookup never started")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := src.calls("US"); n != 1 {
		t.Fatalf("expected 1 shared lookup, got %d", n)
	}
}

func TestGetStatesForRefetchesAfterClear(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	r := NewResolver(src, Config{ClearAfter: 10 * time.Millisecond}, nil)

	if _, err := r.GetStatesFor(context.Background(), "CA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.GetStatesFor(context.Background(), "CA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := src.calls("CA"); n != 1 {
		t.Fatalf("expected burst to share one lookup, got %d", n)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := r.GetStatesFor(context.Background(), "CA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := src.calls("CA"); n != 2 {
		t.Fatalf("expected refetch after clear, got %d lookups", n)
	}

	if cfg, ok := r.Config("ca"); !ok || cfg.StateLabel != "Province" {
		t.Fatalf("expected config to stay cached, got %+v %v", cfg, ok)
	}
}

func TestGetStatesForErrors(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.err = errors.New("boom")
	r := NewResolver(src, Config{}, nil)

	if _, err := r.GetStatesFor(context.Background(), " "); !errors.Is(err, ErrNoCountry) {
		t.Fatalf("expected ErrNoCountry, got %v", err)
	}
	if _, err := r.GetStatesFor(context.Background(), "US"); err == nil {
		t.Fatal("expected source error")
	}
	if _, ok := r.Config("US"); ok {
		t.Fatal("failed lookup must not cache a config")
	}
}

func TestGetStatesForCallerCancellation(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	gate := src.gate("US")
	defer close(gate)
	r := NewResolver(src, Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.GetStatesFor(ctx, "US"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestValidatePostalCode(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	r := NewResolver(src, Config{}, nil)
	if _, err := r.GetStatesFor(context.Background(), "GB"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		value   string
		country string
		cfg     *model.CountryConfig
		want    bool
	}{
		{name: "cached_pattern_match", value: "SW1A 1AA", country: "GB", want: true},
		{name: "cached_pattern_lowercase", value: "sw1a 1aa", country: "GB", want: true},
		{name: "cached_pattern_miss", value: "12345", country: "GB", want: false},
		{name: "explicit_config", value: "1234", country: "US", cfg: &model.CountryConfig{PostcodePattern: `^\d{5}$`}, want: false},
		{name: "no_pattern", value: "anything", country: "HK", cfg: &model.CountryConfig{}, want: true},
		{name: "unknown_country", value: "anything", country: "ZZ", want: true},
		{name: "broken_pattern", value: "x", country: "XX", cfg: &model.CountryConfig{PostcodePattern: `([`}, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := r.ValidatePostalCode(tt.value, tt.country, tt.cfg); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
