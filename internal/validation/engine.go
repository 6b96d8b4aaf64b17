// Package validation evaluates checkout form rules over a field-name to
// value mapping. It knows nothing about rendering: results are returned as
// values and the UI-facing error side-table is mutated only through
// SetError and ClearError.
//
// Rules are ordered per field (required, then format, then the country's
// postal pattern) and short-circuit: the first failing rule names the
// field's message and later rules for that field are skipped.
package validation

import (
	"strings"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// PostalValidator checks a postal code against a country's pattern.
type PostalValidator interface {
	ValidatePostalCode(value, countryCode string, cfg *model.CountryConfig) bool
}

// CardFieldState exposes the widget-reported validity of the iframe-held
// card fields.
type CardFieldState interface {
	ValidNumber() bool
	ValidCVV() bool
}

// PhoneCheck reports whether value is a valid phone number for field. It is
// backed by the phone-formatting widget when one is attached.
type PhoneCheck func(field, value string) bool

// FieldContext carries what a single-field check needs beyond the value.
type FieldContext struct {
	Country  *model.CountryConfig
	Required bool
	Phone    PhoneCheck
}

// FormInput is everything a whole-form pass consults.
type FormInput struct {
	Form           model.FormState
	Countries      map[string]model.CountryConfig
	Country        *model.CountryConfig
	IncludePayment bool
	Card           CardFieldState
	Billing        *model.BillingAddress
	SameAsShipping bool
	PhoneRequired  bool
	Phone          PhoneCheck
}

// Engine evaluates validation rules.
type Engine struct {
	postal PostalValidator
	now    func() time.Time
	table  *ErrorTable
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for card expiration checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithErrorTable shares an existing side-table.
func WithErrorTable(t *ErrorTable) Option {
	return func(e *Engine) {
		e.table = t
	}
}

// New returns an Engine. A nil postal validator treats every postal code as
// valid.
func New(postal PostalValidator, opts ...Option) *Engine {
	e := &Engine{
		postal: postal,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = NewErrorTable()
	}
	return e
}

// SetError records a UI-facing error for field.
func (e *Engine) SetError(field, message string) { e.table.Set(field, message) }

// ClearError removes the UI-facing error for field.
func (e *Engine) ClearError(field string) bool { return e.table.Clear(field) }

// Errors returns the current side-table contents.
func (e *Engine) Errors() map[string]string { return e.table.Snapshot() }

// ResetErrors empties the side-table.
func (e *Engine) ResetErrors() { e.table.Reset() }

// pass accumulates one validation traversal. The first field to fail wins
// firstErrorField; a field that already failed is not evaluated again.
type pass struct {
	errors map[string]string
	first  string
}

func newPass() *pass {
	return &pass{errors: make(map[string]string)}
}

func (p *pass) failed(field string) bool {
	_, ok := p.errors[field]
	return ok
}

func (p *pass) fail(field, message string) {
	if p.failed(field) {
		return
	}
	p.errors[field] = message
	if p.first == "" {
		p.first = field
	}
}

func (p *pass) result() model.ValidationResult {
	return model.ValidationResult{
		IsValid:         len(p.errors) == 0,
		Errors:          p.errors,
		FirstErrorField: p.first,
	}
}

// ValidateField checks one field. Billing-prefixed names follow the same
// rules as their shipping counterpart.
func (e *Engine) ValidateField(name, value string, fc FieldContext) model.ValidationResult {
	p := newPass()
	value = strings.TrimSpace(value)

	if value == "" {
		if fc.Required {
			p.fail(name, requiredMessage(name, fc.Country))
		}
		return p.result()
	}

	if msg := e.formatError(name, value, fc.Country, fc.Phone); msg != "" {
		p.fail(name, msg)
	}
	return p.result()
}

// formatError applies the format and postal rules of a non-empty value.
func (e *Engine) formatError(name, value string, cfg *model.CountryConfig, phone PhoneCheck) string {
	switch model.ShippingField(name) {
	case model.FieldEmail:
		if !ValidEmail(value) {
			return msgEmailInvalid
		}
	case model.FieldFirstName, model.FieldLastName:
		if !ValidName(value) {
			return msgNameInvalid
		}
	case model.FieldCity:
		if !ValidCity(value) {
			return msgCityInvalid
		}
	case model.FieldPhone:
		if !e.validPhone(name, value, phone) {
			return msgPhoneInvalid
		}
	case model.FieldPostal:
		if !e.validPostal(value, cfg) {
			return postalMessage(cfg)
		}
	case model.FieldExpMonth:
		if field, msg := ValidateExpiration(value, "", e.now()); field == model.FieldExpMonth {
			return msg
		}
	}
	return ""
}

func (e *Engine) validPhone(field, value string, phone PhoneCheck) bool {
	if phone != nil {
		return phone(field, value)
	}
	return ValidPhone(value)
}

func (e *Engine) validPostal(value string, cfg *model.CountryConfig) bool {
	if e.postal == nil || cfg == nil {
		return true
	}
	return e.postal.ValidatePostalCode(value, cfg.Code, cfg)
}

// ValidateForm runs the whole-form traversal. firstErrorField is the first
// field that fails in traversal order, not the lexically first key.
func (e *Engine) ValidateForm(in FormInput) model.ValidationResult {
	p := newPass()
	form := in.Form

	required := []string{
		model.FieldEmail,
		model.FieldFirstName,
		model.FieldLastName,
		model.FieldCountry,
		model.FieldAddress1,
		model.FieldCity,
		model.FieldPostal,
	}
	if in.Country != nil && in.Country.StateRequired {
		required = append(required, model.FieldProvince)
	}
	if in.PhoneRequired {
		required = append(required, model.FieldPhone)
	}
	for _, f := range required {
		if form.Get(f) == "" {
			p.fail(f, requiredMessage(f, in.Country))
		}
	}

	for _, f := range []string{model.FieldFirstName, model.FieldLastName} {
		if v := form.Get(f); v != "" && !p.failed(f) && !ValidName(v) {
			p.fail(f, msgNameInvalid)
		}
	}
	if v := form.Get(model.FieldCity); v != "" && !p.failed(model.FieldCity) && !ValidCity(v) {
		p.fail(model.FieldCity, msgCityInvalid)
	}

	if v := form.Get(model.FieldEmail); v != "" && !p.failed(model.FieldEmail) && !ValidEmail(v) {
		p.fail(model.FieldEmail, msgEmailInvalid)
	}

	if v := form.Get(model.FieldPhone); v != "" && !p.failed(model.FieldPhone) && !e.validPhone(model.FieldPhone, v, in.Phone) {
		p.fail(model.FieldPhone, msgPhoneInvalid)
	}

	if v := form.Get(model.FieldPostal); v != "" && !p.failed(model.FieldPostal) && !e.validPostal(v, in.Country) {
		p.fail(model.FieldPostal, postalMessage(in.Country))
	}

	if in.IncludePayment {
		e.validatePayment(p, in)
	}

	if !in.SameAsShipping && in.Billing != nil {
		e.validateBilling(p, *in.Billing, in)
	}

	return p.result()
}

// validatePayment merges widget-reported card validity with the local
// expiration check.
func (e *Engine) validatePayment(p *pass, in FormInput) {
	if in.Card == nil || !in.Card.ValidNumber() {
		p.fail(model.FieldCardNumber, msgCardNumber)
	}
	if in.Card == nil || !in.Card.ValidCVV() {
		p.fail(model.FieldCardCVV, msgCardCVV)
	}
	month, year := in.Form.Get(model.FieldExpMonth), in.Form.Get(model.FieldExpYear)
	if field, msg := ValidateExpiration(month, year, e.now()); field != "" {
		p.fail(field, msg)
	}
}

// validateBilling applies the shipping rule set to the billing record and
// reports errors under billing-prefixed keys.
func (e *Engine) validateBilling(p *pass, b model.BillingAddress, in FormInput) {
	values := b.Values()

	var cfg *model.CountryConfig
	if c, ok := in.Countries[b.Country]; ok {
		cfg = &c
	}

	required := []string{
		model.FieldFirstName,
		model.FieldLastName,
		model.FieldAddress1,
		model.FieldCity,
		model.FieldPostal,
		model.FieldCountry,
	}
	if cfg != nil && cfg.StateRequired {
		required = append(required, model.FieldProvince)
	}
	for _, f := range required {
		if values.Get(f) == "" {
			p.fail(model.BillingField(f), requiredMessage(f, cfg))
		}
	}

	for _, f := range []string{model.FieldFirstName, model.FieldLastName, model.FieldCity, model.FieldPhone, model.FieldPostal} {
		key := model.BillingField(f)
		v := values.Get(f)
		if v == "" || p.failed(key) {
			continue
		}
		if msg := e.formatError(key, v, cfg, in.Phone); msg != "" {
			p.fail(key, msg)
		}
	}
}
