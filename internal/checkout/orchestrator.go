// Package checkout is the checkout orchestrator: it owns the form state,
// drives the country cascade and field validation, and runs the submit
// state machine that turns a valid form into exactly one order.
package checkout

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/events"
	"github.com/iliamunaev/checkout-engine/internal/guard"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/session"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

// State is the submit state machine's state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateTokenizing
	StateSubmitting
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateTokenizing:
		return "tokenizing"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// Deps are the orchestrator's collaborators. Express, Events, Logger and
// Now are optional.
type Deps struct {
	Resolver  *address.Resolver
	Tokenizer Tokenizer
	API       OrderAPI
	Cart      CartSource
	Store     session.Store
	UI        UI
	Prompter  guard.Prompter
	Navigator guard.Redirector
	Express   ExpressCheckout
	Events    *events.Bus
	Logger    *log.Logger
	Now       func() time.Time
}

// Orchestrator coordinates one checkout page session.
type Orchestrator struct {
	cfg       Config
	resolver  *address.Resolver
	engine    *validation.Engine
	tokenizer Tokenizer
	api       OrderAPI
	cart      CartSource
	store     session.Store
	ui        UI
	navigator guard.Redirector
	express   ExpressCheckout
	guard     *guard.Guard
	bus       *events.Bus
	logger    *log.Logger
	tracer    trace.Tracer
	now       func() time.Time

	shippingCascade *address.Cascade
	billingCascade  *address.Cascade

	// base is canceled by Destroy; background work derives from it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	form           model.FormState
	method         model.PaymentMethod
	sameAsShipping bool
	selectedCur    string
	countryCfg     map[Target]model.CountryConfig
	phones         map[string]PhoneFormatter
	autocompletes  map[Target]Autocomplete
	state          State
	busy           bool
	gen            uint64
	interactive    bool
	started        bool
	prospectTried  bool
	blurTimers     map[string]*time.Timer
	bannerTimer    *time.Timer
	destroyed      bool
}

// New returns an Orchestrator.
//
// It panics if a required collaborator is nil.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Resolver == nil || deps.Tokenizer == nil || deps.API == nil || deps.Cart == nil ||
		deps.Store == nil || deps.UI == nil || deps.Prompter == nil || deps.Navigator == nil {
		panic("checkout.New: nil collaborator")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	cfg = cfg.withDefaults()

	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:             cfg,
		resolver:        deps.Resolver,
		engine:          validation.New(deps.Resolver, validation.WithClock(deps.Now)),
		tokenizer:       deps.Tokenizer,
		api:             deps.API,
		cart:            deps.Cart,
		store:           deps.Store,
		ui:              deps.UI,
		navigator:       deps.Navigator,
		express:         deps.Express,
		bus:             deps.Events,
		logger:          deps.Logger,
		tracer:          otel.Tracer("github.com/iliamunaev/checkout-engine/internal/checkout"),
		now:             deps.Now,
		shippingCascade: address.NewCascade(deps.Resolver),
		billingCascade:  address.NewCascade(deps.Resolver),
		base:            base,
		cancel:          cancel,
		form:            make(model.FormState),
		method:          cfg.DefaultPaymentMethod,
		sameAsShipping:  true,
		countryCfg:      make(map[Target]model.CountryConfig),
		phones:          make(map[string]PhoneFormatter),
		autocompletes:   make(map[Target]Autocomplete),
		blurTimers:      make(map[string]*time.Timer),
	}
	o.guard = guard.New(guard.Config{
		Store:           deps.Store,
		Prompter:        deps.Prompter,
		Redirector:      deps.Navigator,
		Resetter:        o,
		ConfirmationURL: cfg.URLs.Success,
		Now:             deps.Now,
		Logger:          deps.Logger,
	})
	return o
}

// StepResult reports one initialization step.
type StepResult struct {
	Name       string
	Status     string
	DurationMS int64
	Detail     string
}

// Initialize loads the country list, sets up the tokenization bridge and
// runs the duplicate-order guard concurrently, then selects the default
// country. Submit stays ignored until it returns. A failed step is
// reported but does not keep the form from becoming interactive.
func (o *Orchestrator) Initialize(ctx context.Context) ([]StepResult, error) {
	var g errgroup.Group
	var mu sync.Mutex
	results := make(map[string]StepResult, 3)

	record := func(name string, fn func() error) func() error {
		return func() error {
			start := time.Now()
			err := fn()

			st, detail := "ok", ""
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					st = "canceled"
				} else {
					st = "error"
					detail = apperr.Kind(err)
				}
				o.logger.Printf("checkout_init_step name=%s status=%s err=%v", name, st, err)
			}

			mu.Lock()
			results[name] = StepResult{Name: name, Status: st, DurationMS: time.Since(start).Milliseconds(), Detail: detail}
			mu.Unlock()
			return err
		}
	}

	g.Go(record("countries", func() error {
		countries, err := o.resolver.GetCountries(ctx)
		if err != nil {
			return err
		}
		o.ui.SetCountries(countries)
		return nil
	}))
	g.Go(record("tokenization", func() error { return o.tokenizer.Initialize(ctx) }))
	g.Go(record("duplicate_guard", func() error {
		_, err := o.guard.Check(ctx, guard.TriggerLoad)
		return err
	}))

	err := g.Wait()

	o.populateDefaults()
	if code := o.cfg.DefaultCountry; code != "" {
		if cerr := o.SelectCountry(ctx, Shipping, code); cerr != nil && err == nil {
			err = cerr
		}
	}

	o.mu.Lock()
	o.interactive = true
	o.mu.Unlock()

	o.bus.Publish(events.Event{Name: events.CheckoutFormInitialized})
	o.logger.Printf("checkout_initialized card_available=%t", o.tokenizer.Available())

	return []StepResult{results["countries"], results["tokenization"], results["duplicate_guard"]}, err
}

// populateDefaults writes the configured defaults into empty fields.
func (o *Orchestrator) populateDefaults() {
	o.mu.Lock()
	var set []string
	if o.cfg.DefaultCountry != "" && o.form.Get(model.FieldCountry) == "" {
		o.form[model.FieldCountry] = address.NormalizeCode(o.cfg.DefaultCountry)
		set = append(set, model.FieldCountry)
	}
	values := make(map[string]string, len(set))
	for _, f := range set {
		values[f] = o.form[f]
	}
	o.mu.Unlock()

	for _, f := range set {
		o.ui.SetFieldValue(f, values[f])
	}
}

// ResetForm clears every field and error, restores defaults and returns
// the state machine to Idle. It is the duplicate guard's "start over".
func (o *Orchestrator) ResetForm(ctx context.Context) error {
	o.mu.Lock()
	cleared := o.form.Keys()
	o.form = make(model.FormState)
	o.method = o.cfg.DefaultPaymentMethod
	o.sameAsShipping = true
	o.state = StateIdle
	o.busy = false
	o.gen++
	o.mu.Unlock()

	o.engine.ResetErrors()
	for _, f := range cleared {
		o.ui.SetFieldValue(f, "")
		o.ui.ClearFieldError(f)
	}
	o.ui.SetLoading(false)

	o.populateDefaults()
	if code := o.cfg.DefaultCountry; code != "" {
		if err := o.SelectCountry(ctx, Shipping, code); err != nil {
			return err
		}
	}
	o.logger.Printf("checkout_form_reset")
	return nil
}

// OnPageShow handles page reactivation. persisted reports a restore from
// the back/forward cache, which is treated as an abandoned attempt:
// processing is forced off and the payment method returns to the default.
// The duplicate guard runs before the form becomes interactive again.
func (o *Orchestrator) OnPageShow(ctx context.Context, persisted bool) (guard.Result, error) {
	trigger := guard.TriggerPageShow
	o.mu.Lock()
	o.interactive = false
	if persisted {
		trigger = guard.TriggerCacheRestore
		o.busy = false
		o.gen++
		o.state = StateIdle
		o.method = o.cfg.DefaultPaymentMethod
	}
	o.mu.Unlock()

	if persisted {
		o.ui.SetLoading(false)
		o.logger.Printf("checkout_restored processing_reset=true")
	}

	res, err := o.guard.Check(ctx, trigger)

	o.mu.Lock()
	o.interactive = true
	o.mu.Unlock()
	return res, err
}

// State returns the submit state machine's state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Processing reports whether a submission attempt is in flight.
func (o *Orchestrator) Processing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Form returns a copy of the form state.
func (o *Orchestrator) Form() model.FormState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.form.Clone()
}

// Errors returns the field errors currently shown.
func (o *Orchestrator) Errors() map[string]string {
	return o.engine.Errors()
}

// PaymentMethod returns the selected payment method.
func (o *Orchestrator) PaymentMethod() model.PaymentMethod {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method
}

// SetPaymentMethod selects the payment method used by the next submit.
func (o *Orchestrator) SetPaymentMethod(m model.PaymentMethod) {
	o.mu.Lock()
	o.method = m
	o.mu.Unlock()
}

// SetCurrency records the customer's currency choice.
func (o *Orchestrator) SetCurrency(code string) {
	o.mu.Lock()
	o.selectedCur = code
	o.mu.Unlock()
}

// AttachPhone registers the phone widget of a phone field.
func (o *Orchestrator) AttachPhone(field string, f PhoneFormatter) {
	o.mu.Lock()
	o.phones[field] = f
	o.mu.Unlock()
}

// AttachAutocomplete registers the address autocomplete of a target.
func (o *Orchestrator) AttachAutocomplete(t Target, a Autocomplete) {
	o.mu.Lock()
	o.autocompletes[t] = a
	o.mu.Unlock()
}

// Destroy stops every timer, cancels background work and tears down the
// tokenization bridge. The orchestrator is unusable afterwards.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.destroyed = true
	o.interactive = false
	for f, t := range o.blurTimers {
		t.Stop()
		delete(o.blurTimers, f)
	}
	if o.bannerTimer != nil {
		o.bannerTimer.Stop()
		o.bannerTimer = nil
	}
	o.mu.Unlock()

	o.cancel()
	o.tokenizer.Destroy()
	o.wg.Wait()
	o.logger.Printf("checkout_destroyed")
}

// goBackground runs fn on a goroutine tracked by Destroy.
func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		fn(o.base)
	}()
}
