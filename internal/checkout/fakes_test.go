package checkout

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/events"
	"github.com/iliamunaev/checkout-engine/internal/guard"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/order"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
	"github.com/iliamunaev/checkout-engine/internal/session"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	fetches map[string]int
}

func (s *fakeSource) calls(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[code]
}

func (s *fakeSource) gate(code string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	s.gates[code] = ch
	return ch
}

func (s *fakeSource) Countries(context.Context) ([]model.Country, error) {
	return []model.Country{{Code: "US", Name: "United States"}, {Code: "GB", Name: "United Kingdom"}, {Code: "FR", Name: "France"}}, nil
}

func (s *fakeSource) States(ctx context.Context, code string) (model.StatesResult, error) {
	s.mu.Lock()
	if s.fetches == nil {
		s.fetches = make(map[string]int)
	}
	s.fetches[code]++
	gate := s.gates[code]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.StatesResult{}, ctx.Err()
		}
	}

	switch code {
	case "US":
		return model.StatesResult{
			States:        []model.State{{Code: "IL", Name: "Illinois"}, {Code: "NY", Name: "New York"}},
			CountryConfig: model.CountryConfig{Code: "US", StateLabel: "State", PostcodeLabel: "ZIP code", StateRequired: true, PostcodePattern: `^\d{5}$`},
		}, nil
	case "GB":
		return model.StatesResult{
			CountryConfig: model.CountryConfig{Code: "GB", PostcodeLabel: "Postcode"},
		}, nil
	default:
		return model.StatesResult{CountryConfig: model.CountryConfig{Code: code}}, nil
	}
}

type fakeTokenizer struct {
	mu        sync.Mutex
	available bool
	valid     bool
	token     string
	err       error
	calls     []model.CardData
	focused   []string
}

func (t *fakeTokenizer) Initialize(context.Context) error { return nil }

func (t *fakeTokenizer) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

func (t *fakeTokenizer) ValidNumber() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.valid
}

func (t *fakeTokenizer) ValidCVV() bool { return t.ValidNumber() }

func (t *fakeTokenizer) TokenizeCard(_ context.Context, data model.CardData) (model.TokenOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, data)
	if t.err != nil {
		return model.TokenOutcome{}, t.err
	}
	return model.TokenOutcome{Token: t.token, Card: model.CardMetadata{LastFour: "4242"}}, nil
}

func (t *fakeTokenizer) TransferFocus(field string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focused = append(t.focused, field)
}

func (t *fakeTokenizer) Destroy() {}

func (t *fakeTokenizer) tokenizeCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

type fakeAPI struct {
	mu       sync.Mutex
	order    model.Order
	err      error
	block    chan struct{}
	entered  chan struct{}
	payloads []model.OrderPayload
	carts    []model.ProspectCartRequest
}

func (a *fakeAPI) CreateOrder(ctx context.Context, p model.OrderPayload) (model.Order, error) {
	a.mu.Lock()
	a.payloads = append(a.payloads, p)
	block, entered := a.block, a.entered
	a.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return model.Order{}, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.order, a.err
}

func (a *fakeAPI) CreateCart(_ context.Context, req model.ProspectCartRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.carts = append(a.carts, req)
	return "cart-1", nil
}

func (a *fakeAPI) orders() []model.OrderPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.OrderPayload(nil), a.payloads...)
}

func (a *fakeAPI) cartCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.carts)
}

type stateOptions struct {
	target Target
	states []model.State
	policy address.FieldPolicy
}

type fakeUI struct {
	mu          sync.Mutex
	loading     []bool
	fieldErrors map[string]string
	values      map[string]string
	focused     []string
	banners     []string
	hidden      int
	options     []stateOptions
	countries   []model.Country
}

func newFakeUI() *fakeUI {
	return &fakeUI{fieldErrors: make(map[string]string), values: make(map[string]string)}
}

func (u *fakeUI) SetLoading(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.loading = append(u.loading, on)
}

func (u *fakeUI) SetCountries(c []model.Country) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.countries = c
}

func (u *fakeUI) SetStateOptions(t Target, states []model.State, p address.FieldPolicy) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.options = append(u.options, stateOptions{target: t, states: states, policy: p})
}

func (u *fakeUI) SetFieldValue(field, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.values[field] = value
}

func (u *fakeUI) ShowFieldError(field, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fieldErrors[field] = message
}

func (u *fakeUI) ClearFieldError(field string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.fieldErrors, field)
}

func (u *fakeUI) FocusField(field string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.focused = append(u.focused, field)
}

func (u *fakeUI) ShowBanner(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.banners = append(u.banners, message)
}

func (u *fakeUI) HideBanner() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hidden++
}

func (u *fakeUI) errorsSnapshot() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]string, len(u.fieldErrors))
	for k, v := range u.fieldErrors {
		out[k] = v
	}
	return out
}

func (u *fakeUI) hiddenCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hidden
}

func (u *fakeUI) lastOptions() stateOptions {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.options) == 0 {
		return stateOptions{}
	}
	return u.options[len(u.options)-1]
}

type fakeCart struct{ snap model.CartSnapshot }

func (c fakeCart) Snapshot() model.CartSnapshot { return c.snap }

type fakePrompter struct {
	mu     sync.Mutex
	choice guard.Choice
	calls  int
}

func (p *fakePrompter) ConfirmDuplicate(context.Context, model.CompletedOrder) (guard.Choice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.choice, nil
}

func (p *fakePrompter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *fakeNavigator) Redirect(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	return nil
}

func (n *fakeNavigator) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

type fakeExpress struct {
	mu    sync.Mutex
	calls []ExpressRequest
}

func (e *fakeExpress) Start(_ context.Context, req ExpressRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, req)
	return nil
}

type harness struct {
	source    *fakeSource
	tokenizer *fakeTokenizer
	api       *fakeAPI
	ui        *fakeUI
	store     *session.MemoryStore
	prompter  *fakePrompter
	navigator *fakeNavigator
	express   *fakeExpress
	events    []events.Event
	eventsMu  sync.Mutex
	o         *Orchestrator
}

func (h *harness) event(name events.Name) (events.Event, bool) {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	for _, e := range h.events {
		if e.Name == name {
			return e, true
		}
	}
	return events.Event{}, false
}

func (h *harness) published() []events.Name {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	out := make([]events.Name, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Name)
	}
	return out
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		source:    &fakeSource{},
		tokenizer: &fakeTokenizer{available: true, valid: true, token: "tok_123"},
		api:       &fakeAPI{order: model.Order{RefID: "R1", Number: 1001}},
		ui:        newFakeUI(),
		store:     session.NewMemoryStore(func() time.Time { return testNow }),
		prompter:  &fakePrompter{choice: guard.ChoiceStartOver},
		navigator: &fakeNavigator{},
		express:   &fakeExpress{},
	}

	cfg := Config{
		DefaultCountry: "US",
		Currency:       order.CurrencySources{Campaign: "USD"},
		URLs: pagemeta.URLs{
			Success: "https://shop.example.com/success",
			Failure: "https://shop.example.com/checkout?payment_failed=true",
		},
		Timeouts: Timeouts{BlurDebounce: 20 * time.Millisecond, BannerDismiss: 30 * time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := log.New(io.Discard, "", 0)
	bus := events.NewBus()
	bus.Subscribe(events.ObserverFunc(func(e events.Event) {
		h.eventsMu.Lock()
		h.events = append(h.events, e)
		h.eventsMu.Unlock()
	}))

	h.o = New(Deps{
		Resolver:  address.NewResolver(h.source, address.Config{}, logger),
		Tokenizer: h.tokenizer,
		API:       h.api,
		Cart:      fakeCart{snap: model.CartSnapshot{Lines: []model.CartLine{{PackageID: 10, Quantity: 1}}}},
		Store:     h.store,
		UI:        h.ui,
		Prompter:  h.prompter,
		Navigator: h.navigator,
		Express:   h.express,
		Events:    bus,
		Logger:    logger,
		Now:       func() time.Time { return testNow },
	}, cfg)
	t.Cleanup(h.o.Destroy)
	return h
}

// fill enters a complete, valid shipping and card form.
func (h *harness) fill() {
	for f, v := range map[string]string{
		model.FieldEmail:     "jane@example.com",
		model.FieldFirstName: "Jane",
		model.FieldLastName:  "Doe",
		model.FieldAddress1:  "1 Main St",
		model.FieldCity:      "Springfield",
		model.FieldProvince:  "IL",
		model.FieldPostal:    "62701",
		model.FieldExpMonth:  "12",
		model.FieldExpYear:   "2030",
	} {
		h.o.SetField(f, v)
	}
}
