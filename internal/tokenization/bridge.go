// Package tokenization bridges the checkout to an external iframe-based
// card tokenization widget that talks only through callbacks.
//
// The bridge keeps one tokenization attempt in flight at a time. The
// attempt is held in a single-slot registry keyed by attempt id; whichever
// of a token event, an errors event or the timeout settles it first wins,
// and any later callback finds the slot empty and is dropped.
package tokenization

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// State is the bridge's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateTokenizing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateTokenizing:
		return "tokenizing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Config tunes the bridge.
type Config struct {
	EnvironmentKey string
	Styles         map[string]string
	Timeout        time.Duration
	LoadAttempts   int
	LoadInterval   time.Duration
}

const (
	defaultTimeout      = 30 * time.Second
	defaultLoadAttempts = 10
	defaultLoadInterval = 100 * time.Millisecond
)

type attempt struct {
	id   string
	done chan model.TokenizationOutcome
}

// Bridge wraps the widget lifecycle.
type Bridge struct {
	locator FieldLocator
	loader  ScriptLoader
	cfg     Config
	logger  *log.Logger

	mu          sync.Mutex
	state       State
	widget      Widget
	validNumber bool
	validCVV    bool
	pending     *attempt
	observers   []func(field string, valid bool)
}

// New returns a Bridge in the Uninitialized state.
//
// It panics if locator or loader is nil.
func New(locator FieldLocator, loader ScriptLoader, cfg Config, logger *log.Logger) *Bridge {
	if locator == nil || loader == nil {
		panic("tokenization.New: nil locator or loader")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LoadAttempts <= 0 {
		cfg.LoadAttempts = defaultLoadAttempts
	}
	if cfg.LoadInterval <= 0 {
		cfg.LoadInterval = defaultLoadInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		locator: locator,
		loader:  loader,
		cfg:     cfg,
		logger:  logger,
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Available reports whether card payment can be offered.
func (b *Bridge) Available() bool {
	s := b.State()
	return s == StateLoading || s == StateReady || s == StateTokenizing
}

// OnFieldChange registers fn to be called whenever the widget reports a
// card field's validity.
func (b *Bridge) OnFieldChange(fn func(field string, valid bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Initialize loads the vendor script and sets up the widget. When the page
// has no card fields the bridge stays Uninitialized and nil is returned.
// Calling it again while Loading or Ready is a no-op.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateLoading, StateReady, StateTokenizing:
		b.mu.Unlock()
		return nil
	case StateDestroyed:
		b.mu.Unlock()
		return ErrDestroyed
	}

	numberID, cvvID, ok := b.locator.Locate()
	if !ok {
		b.mu.Unlock()
		b.logger.Printf("tokenization_skipped reason=no_card_fields")
		return nil
	}
	b.state = StateLoading
	b.mu.Unlock()

	w, err := b.load(ctx)
	if err != nil {
		b.setState(StateLoading, StateUninitialized)
		return err
	}

	b.mu.Lock()
	b.widget = w
	b.mu.Unlock()

	w.On(EventReady, b.handle)
	w.On(EventPaymentMethod, b.handle)
	w.On(EventErrors, b.handle)
	w.On(EventValidation, b.handle)
	w.On(EventFieldEvent, b.handle)

	if err := w.Init(WidgetConfig{
		EnvironmentKey:  b.cfg.EnvironmentKey,
		NumberElementID: numberID,
		CVVElementID:    cvvID,
		Styles:          b.cfg.Styles,
	}); err != nil {
		b.setState(StateLoading, StateUninitialized)
		return fmt.Errorf("init tokenization widget: %w", err)
	}
	return nil
}

// load runs the script loader and polls for the vendor global.
func (b *Bridge) load(ctx context.Context) (Widget, error) {
	if err := b.loader.Load(ctx); err != nil {
		return nil, fmt.Errorf("load tokenization script: %w", err)
	}

	for i := 0; i < b.cfg.LoadAttempts; i++ {
		if w, ok := b.loader.Widget(); ok {
			return w, nil
		}
		if err := waitOrCancel(ctx, b.cfg.LoadInterval); err != nil {
			return nil, err
		}
	}
	return nil, ErrScriptUnavailable
}

// setState moves from -> to only if the bridge is still in from.
func (b *Bridge) setState(from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == from {
		b.state = to
	}
}

// handle is the single callback registered for every widget event.
func (b *Bridge) handle(ev Event) {
	switch ev.Name {
	case EventReady:
		b.setState(StateLoading, StateReady)
		b.logger.Printf("tokenization_ready")

	case EventPaymentMethod:
		b.settle(model.TokenOutcome{Token: ev.Token, Card: ev.Card})

	case EventErrors:
		b.settle(model.ValidationErrorsOutcome{Errors: ev.Errors})

	case EventValidation, EventFieldEvent:
		b.trackField(ev.Field, ev.Valid)
	}
}

func (b *Bridge) trackField(field string, valid bool) {
	field = strings.ToLower(field)

	b.mu.Lock()
	switch field {
	case FieldNumber:
		b.validNumber = valid
	case FieldCVV:
		b.validCVV = valid
	default:
		b.mu.Unlock()
		return
	}
	observers := append([]func(string, bool){}, b.observers...)
	b.mu.Unlock()

	for _, fn := range observers {
		fn(field, valid)
	}
}

// ValidNumber reports the widget's last validity verdict for the number.
func (b *Bridge) ValidNumber() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validNumber
}

// ValidCVV reports the widget's last validity verdict for the CVV.
func (b *Bridge) ValidCVV() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validCVV
}

// settle delivers outcome to the pending attempt. With no attempt pending
// the event is late and dropped.
func (b *Bridge) settle(outcome model.TokenizationOutcome) {
	b.mu.Lock()
	p := b.pending
	if p == nil {
		b.mu.Unlock()
		b.logger.Printf("tokenization_late_event outcome=%T", outcome)
		return
	}
	b.pending = nil
	if b.state == StateTokenizing {
		b.state = StateReady
	}
	b.mu.Unlock()

	p.done <- outcome
}

// claim removes attempt id from the slot if it is still there. When the
// attempt was already settled, the settled outcome is returned instead.
func (b *Bridge) claim(p *attempt, fallback model.TokenizationOutcome) model.TokenizationOutcome {
	b.mu.Lock()
	if b.pending != nil && b.pending.id == p.id {
		b.pending = nil
		if b.state == StateTokenizing {
			b.state = StateReady
		}
		b.mu.Unlock()
		return fallback
	}
	b.mu.Unlock()
	return <-p.done
}

// TokenizeCard exchanges the iframe-held card for a token. It returns
// ErrNotReady, ErrIncompleteInput, a *VendorRejectedError or ErrTimeout on
// failure; every failure leaves the bridge Ready for a retry.
func (b *Bridge) TokenizeCard(ctx context.Context, data model.CardData) (model.TokenOutcome, error) {
	b.mu.Lock()
	if b.state != StateReady || b.widget == nil {
		b.mu.Unlock()
		return model.TokenOutcome{}, ErrNotReady
	}
	if strings.TrimSpace(data.FullName) == "" || strings.TrimSpace(data.Month) == "" || strings.TrimSpace(data.Year) == "" {
		b.mu.Unlock()
		return model.TokenOutcome{}, ErrIncompleteInput
	}

	p := &attempt{id: uuid.NewString(), done: make(chan model.TokenizationOutcome, 1)}
	b.pending = p
	b.state = StateTokenizing
	w := b.widget
	b.mu.Unlock()

	b.logger.Printf("tokenization_started attempt_id=%s", p.id)

	if err := w.TokenizeCreditCard(data); err != nil {
		b.claim(p, nil)
		return model.TokenOutcome{}, &VendorRejectedError{Errors: []model.VendorFieldError{{Message: err.Error()}}}
	}

	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()

	var outcome model.TokenizationOutcome
	select {
	case outcome = <-p.done:
	case <-timer.C:
		outcome = b.claim(p, model.TimeoutOutcome{})
	case <-ctx.Done():
		outcome = b.claim(p, nil)
		if outcome == nil {
			return model.TokenOutcome{}, ctx.Err()
		}
	}

	return b.result(p.id, outcome)
}

func (b *Bridge) result(id string, outcome model.TokenizationOutcome) (model.TokenOutcome, error) {
	switch o := outcome.(type) {
	case model.TokenOutcome:
		b.logger.Printf("tokenization_succeeded attempt_id=%s", id)
		return o, nil
	case model.ValidationErrorsOutcome:
		b.logger.Printf("tokenization_rejected attempt_id=%s errors=%d", id, len(o.Errors))
		return model.TokenOutcome{}, &VendorRejectedError{Errors: o.Errors}
	default:
		b.logger.Printf("tokenization_timeout attempt_id=%s", id)
		return model.TokenOutcome{}, ErrTimeout
	}
}

// TransferFocus moves focus into one of the iframe fields.
func (b *Bridge) TransferFocus(field string) {
	b.mu.Lock()
	w := b.widget
	b.mu.Unlock()
	if w != nil {
		w.TransferFocus(field)
	}
}

// Reload asks the widget to rebuild its fields and forgets their validity.
func (b *Bridge) Reload() {
	b.mu.Lock()
	w := b.widget
	b.validNumber, b.validCVV = false, false
	b.mu.Unlock()
	if w != nil {
		w.Reload()
	}
}

// Destroy clears local validity and the attempt slot. A pending attempt is
// settled as a timeout. The vendor iframe itself is left alone.
func (b *Bridge) Destroy() {
	b.mu.Lock()
	p := b.pending
	b.pending = nil
	b.state = StateDestroyed
	b.validNumber, b.validCVV = false, false
	b.observers = nil
	b.widget = nil
	b.mu.Unlock()

	if p != nil {
		p.done <- model.TimeoutOutcome{}
	}
}

// waitOrCancel blocks for d or until ctx is canceled.
func waitOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
