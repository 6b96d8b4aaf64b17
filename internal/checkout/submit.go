package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/events"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/order"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
	"github.com/iliamunaev/checkout-engine/internal/tokenization"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

// Outcome is how a submit call ended.
type Outcome int

const (
	// OutcomeIgnored: another attempt was in flight or the form was not
	// interactive. Nothing was called.
	OutcomeIgnored Outcome = iota
	OutcomeInvalid
	OutcomeFailed
	// OutcomeHandedOff: an express method was passed to the express
	// checkout collaborator.
	OutcomeHandedOff
	OutcomeSucceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "failed"
	case OutcomeHandedOff:
		return "handed_off"
	case OutcomeSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// Result reports one submit call.
type Result struct {
	Outcome    Outcome
	Attempt    model.SubmissionAttempt
	Validation model.ValidationResult
	Failure    *Failure
	Order      *model.Order
	Redirect   string
	Err        error
}

// ErrExpressUnavailable is returned when an express method is submitted
// without an express checkout collaborator.
var ErrExpressUnavailable = errors.New("express checkout unavailable")

// snapshot is the form as seen by one attempt.
type snapshot struct {
	form           model.FormState
	method         model.PaymentMethod
	sameAsShipping bool
	country        *model.CountryConfig
	currency       order.CurrencySources
}

// Submit runs one submission attempt: validate, tokenize the card when
// paying by card, create the order and redirect. A call while another
// attempt is in flight, or before the form is interactive, is ignored.
// Every path except success returns the machine to Idle.
func (o *Orchestrator) Submit(ctx context.Context) Result {
	attempt, gen, ok := o.begin()
	if !ok {
		o.logger.Printf("submit_ignored state=%s", o.State())
		return Result{Outcome: OutcomeIgnored}
	}

	ctx, span := o.tracer.Start(ctx, "checkout.Submit", trace.WithAttributes(
		attribute.String("attempt_id", attempt.ID),
		attribute.String("payment_method", string(attempt.PaymentMethod)),
	))
	defer span.End()

	o.logger.Printf("submit_started attempt_id=%s method=%s express=%t", attempt.ID, attempt.PaymentMethod, attempt.IsExpress)

	res := o.run(ctx, attempt, gen)
	res.Attempt = attempt

	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, apperr.Kind(res.Err))
	}

	o.finish(gen, res.Outcome)
	return res
}

func (o *Orchestrator) begin() (model.SubmissionAttempt, uint64, bool) {
	o.mu.Lock()
	if o.destroyed || !o.interactive || o.busy || o.state != StateIdle {
		o.mu.Unlock()
		return model.SubmissionAttempt{}, 0, false
	}
	o.busy = true
	o.state = StateValidating
	gen := o.gen
	attempt := model.SubmissionAttempt{
		ID:            uuid.NewString(),
		StartedAt:     o.now(),
		PaymentMethod: o.method,
		IsExpress:     o.method.IsExpress(),
	}
	o.mu.Unlock()

	o.ui.SetLoading(true)
	return attempt, gen, true
}

// finish clears the in-flight flag unless the page was restored meanwhile,
// in which case the restore already did.
func (o *Orchestrator) finish(gen uint64, out Outcome) {
	o.mu.Lock()
	current := o.gen == gen
	if current {
		o.busy = false
		if out == OutcomeSucceeded {
			o.state = StateSucceeded
		} else {
			o.state = StateIdle
		}
	}
	o.mu.Unlock()

	if current && out != OutcomeSucceeded {
		o.ui.SetLoading(false)
	}
}

// advance moves the machine to s for the attempt of generation gen.
func (o *Orchestrator) advance(gen uint64, s State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	o.state = s
	return true
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

func (o *Orchestrator) snapshot() snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := snapshot{
		form:           o.form.Clone(),
		method:         o.method,
		sameAsShipping: o.sameAsShipping,
		currency:       o.currencySources(),
	}
	if cfg, ok := o.countryCfg[Shipping]; ok {
		s.country = &cfg
	}
	return s
}

func (o *Orchestrator) run(ctx context.Context, attempt model.SubmissionAttempt, gen uint64) Result {
	snap := o.snapshot()
	if snap.country == nil {
		if cfg, ok := o.resolver.Config(snap.form.Get(model.FieldCountry)); ok {
			snap.country = &cfg
		}
	}

	if attempt.IsExpress && !o.cfg.ValidateExpress {
		return o.handOff(ctx, attempt, gen, snap)
	}

	if v := o.validate(ctx, snap, !attempt.IsExpress); !v.IsValid {
		if o.current(gen) {
			o.showValidation(v)
		}
		o.logger.Printf("submit_invalid attempt_id=%s first_error=%s errors=%d", attempt.ID, v.FirstErrorField, len(v.Errors))
		return Result{Outcome: OutcomeInvalid, Validation: v, Err: apperr.ErrInputInvalid}
	}

	var token string
	if !attempt.IsExpress {
		if !o.advance(gen, StateTokenizing) {
			return Result{Outcome: OutcomeFailed, Err: context.Canceled}
		}
		tok, err := o.tokenize(ctx, attempt, snap)
		if err != nil {
			return o.fail(attempt, gen, err)
		}
		token = tok.Token
	}

	if !o.advance(gen, StateSubmitting) {
		return Result{Outcome: OutcomeFailed, Err: context.Canceled}
	}

	form := snap.form
	for _, f := range []string{model.FieldPhone, model.BillingField(model.FieldPhone)} {
		if n := o.PhoneNumber(f); n != "" {
			form[f] = n
		}
	}
	billing := model.BillingFromForm(form)
	payload := order.Build(form, o.cart.Snapshot(), &billing, snap.sameAsShipping, order.Options{
		PaymentMethod: attempt.PaymentMethod,
		CardToken:     token,
		Currency:      snap.currency,
		URLs:          o.cfg.URLs,
	})

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.CreateOrder)
	defer cancel()
	created, err := o.api.CreateOrder(cctx, payload)
	if err != nil {
		return o.fail(attempt, gen, err)
	}
	return o.succeed(ctx, attempt, gen, created, payload.Currency)
}

func (o *Orchestrator) validate(ctx context.Context, snap snapshot, includePayment bool) model.ValidationResult {
	_, span := o.tracer.Start(ctx, "checkout.Validate")
	defer span.End()

	in := validation.FormInput{
		Form:           snap.form,
		Countries:      o.resolver.Configs(),
		Country:        snap.country,
		IncludePayment: includePayment,
		Card:           o.tokenizer,
		SameAsShipping: snap.sameAsShipping,
		PhoneRequired:  o.cfg.PhoneRequired,
		Phone:          o.phoneCheck,
	}
	if !snap.sameAsShipping {
		b := model.BillingFromForm(snap.form)
		b.Country = strings.ToUpper(b.Country)
		in.Billing = &b
	}
	v := o.engine.ValidateForm(in)
	span.SetAttributes(attribute.Bool("valid", v.IsValid), attribute.Int("errors", len(v.Errors)))
	return v
}

func (o *Orchestrator) tokenize(ctx context.Context, attempt model.SubmissionAttempt, snap snapshot) (model.TokenOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Tokenize")
	defer span.End()

	if !o.tokenizer.Available() {
		return model.TokenOutcome{}, apperr.ErrNotReady
	}
	fullName := strings.TrimSpace(snap.form.Get(model.FieldFirstName) + " " + snap.form.Get(model.FieldLastName))
	tok, err := o.tokenizer.TokenizeCard(ctx, model.CardData{
		FullName: fullName,
		Month:    snap.form.Get(model.FieldExpMonth),
		Year:     snap.form.Get(model.FieldExpYear),
	})
	if err != nil {
		span.SetStatus(codes.Error, apperr.Kind(err))
		return model.TokenOutcome{}, err
	}

	o.bus.Publish(events.Event{
		Name:      events.PaymentTokenized,
		AttemptID: attempt.ID,
		Method:    string(attempt.PaymentMethod),
		CardLast4: tok.Card.LastFour,
	})
	return tok, nil
}

func (o *Orchestrator) handOff(ctx context.Context, attempt model.SubmissionAttempt, gen uint64, snap snapshot) Result {
	if o.express == nil {
		return o.fail(attempt, gen, fmt.Errorf("%s: %w", attempt.PaymentMethod, ErrExpressUnavailable))
	}
	err := o.express.Start(ctx, ExpressRequest{
		AttemptID: attempt.ID,
		Method:    attempt.PaymentMethod,
		Cart:      o.cart.Snapshot(),
		Currency:  order.ResolveCurrency(snap.currency),
		URLs:      o.cfg.URLs,
	})
	if err != nil {
		return o.fail(attempt, gen, err)
	}
	o.logger.Printf("submit_handed_off attempt_id=%s method=%s", attempt.ID, attempt.PaymentMethod)
	return Result{Outcome: OutcomeHandedOff}
}

// fail renders err and reports it. A stale attempt leaves the UI alone.
func (o *Orchestrator) fail(attempt model.SubmissionAttempt, gen uint64, err error) Result {
	f := Classify(err)
	o.logger.Printf("submit_failed attempt_id=%s kind=%s state=%s err=%v", attempt.ID, f.Kind, o.State(), err)

	o.bus.Publish(events.Event{
		Name:      events.PaymentError,
		AttemptID: attempt.ID,
		Method:    string(attempt.PaymentMethod),
		Kind:      f.Kind,
		Message:   f.Banner,
	})

	if o.current(gen) {
		o.showFailure(f)
	}
	return Result{Outcome: OutcomeFailed, Failure: &f, Err: err}
}

// succeed records the order and redirects. currency is the submitted one,
// used when the answer does not name it.
func (o *Orchestrator) succeed(ctx context.Context, attempt model.SubmissionAttempt, gen uint64, created model.Order, currency string) Result {
	if err := o.guard.Record(ctx, created); err != nil {
		o.logger.Printf("record_completed_order_failed ref_id=%s err=%v", created.RefID, err)
	}
	if created.Currency != "" {
		currency = created.Currency
	}
	o.bus.Publish(events.Event{
		Name:      events.OrderCompleted,
		AttemptID: attempt.ID,
		Method:    string(attempt.PaymentMethod),
		RefID:     created.RefID,
		Total:     created.TotalInclTax,
		Currency:  currency,
	})
	o.logger.Printf("submit_succeeded attempt_id=%s ref_id=%s number=%d total=%s %s",
		attempt.ID, created.RefID, created.Number, created.TotalInclTax.StringFixed(2), currency)

	res := Result{Outcome: OutcomeSucceeded, Order: &created}
	target := redirectTarget(created, o.cfg.URLs)
	if target == "" {
		o.bus.Publish(events.Event{Name: events.OrderRedirectMissing, AttemptID: attempt.ID, RefID: created.RefID})
		o.logger.Printf("order_redirect_missing ref_id=%s", created.RefID)
		return res
	}
	res.Redirect = target

	if !o.current(gen) {
		return res
	}
	if err := o.navigator.Redirect(ctx, target); err != nil {
		o.logger.Printf("redirect_failed ref_id=%s err=%v", created.RefID, err)
		res.Err = err
	}
	return res
}

// redirectTarget prefers the order's payment completion URL, then the
// success page with the reference id.
func redirectTarget(o model.Order, urls pagemeta.URLs) string {
	if u := strings.TrimSpace(o.PaymentCompleteURL); u != "" {
		return u
	}
	if urls.Success != "" {
		return pagemeta.WithRefID(urls.Success, o.RefID)
	}
	return ""
}

// fieldOrder fixes the focus order of field errors raised after
// validation.
var fieldOrder = []string{
	model.FieldEmail,
	model.FieldFirstName,
	model.FieldLastName,
	model.FieldCountry,
	model.FieldAddress1,
	model.FieldCity,
	model.FieldPostal,
	model.FieldProvince,
	model.FieldPhone,
	model.FieldCardNumber,
	model.FieldCardCVV,
	model.FieldExpMonth,
	model.FieldExpYear,
}

func (o *Orchestrator) showValidation(v model.ValidationResult) {
	for field := range o.engine.Errors() {
		if _, still := v.Errors[field]; !still {
			o.engine.ClearError(field)
			o.ui.ClearFieldError(field)
		}
	}
	for field, msg := range v.Errors {
		o.engine.SetError(field, msg)
		o.ui.ShowFieldError(field, msg)
	}
	o.focus(v.FirstErrorField)
}

func (o *Orchestrator) showFailure(f Failure) {
	first := ""
	for field, msg := range f.Fields {
		o.engine.SetError(field, msg)
		o.ui.ShowFieldError(field, msg)
	}
	for _, field := range fieldOrder {
		if _, ok := f.Fields[field]; ok {
			first = field
			break
		}
	}
	if first == "" {
		for field := range f.Fields {
			if first == "" || field < first {
				first = field
			}
		}
	}
	if first != "" {
		o.focus(first)
	}
	if f.Banner != "" {
		o.showBanner(f.Banner)
	}
}

// focus moves focus to field, through the widget for the iframe fields.
func (o *Orchestrator) focus(field string) {
	switch field {
	case "":
		return
	case model.FieldCardNumber:
		o.tokenizer.TransferFocus(tokenization.FieldNumber)
	case model.FieldCardCVV:
		o.tokenizer.TransferFocus(tokenization.FieldCVV)
	default:
		o.ui.FocusField(field)
	}
}
