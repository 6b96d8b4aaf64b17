package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/events"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

// mirrored lists the shipping fields copied into billing while billing is
// the same as shipping.
var mirrored = []string{
	model.FieldFirstName,
	model.FieldLastName,
	model.FieldAddress1,
	model.FieldAddress2,
	model.FieldCity,
	model.FieldProvince,
	model.FieldPostal,
	model.FieldCountry,
	model.FieldPhone,
}

func isMirrored(field string) bool {
	for _, f := range mirrored {
		if f == field {
			return true
		}
	}
	return false
}

// SetField records an input event. The field's error is cleared; a
// shipping address field is mirrored into billing while same-as-shipping
// is on. The first edit of the session starts the checkout.
func (o *Orchestrator) SetField(field, value string) {
	o.mu.Lock()
	o.form[field] = value
	var mirror string
	if o.sameAsShipping && isMirrored(field) {
		mirror = model.BillingField(field)
		o.form[mirror] = value
	}
	first := !o.started
	o.started = true
	o.mu.Unlock()

	if o.engine.ClearError(field) {
		o.ui.ClearFieldError(field)
	}
	if mirror != "" {
		o.ui.SetFieldValue(mirror, value)
	}

	if first {
		o.bus.Publish(events.Event{Name: events.CheckoutStarted})
	}
	// formStart is armed by the first edit and fires once an edit leaves a
	// valid email in the form.
	if o.cfg.Prospect.AutoCreate && o.cfg.Prospect.TriggerOn == TriggerFormStart {
		o.startProspect()
	}
}

// BlurField schedules a debounced check of field. A later blur of the same
// field replaces the pending check.
func (o *Orchestrator) BlurField(field string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return
	}
	if t, ok := o.blurTimers[field]; ok {
		t.Stop()
	}
	o.blurTimers[field] = time.AfterFunc(o.cfg.Timeouts.BlurDebounce, func() {
		o.mu.Lock()
		if o.destroyed {
			o.mu.Unlock()
			return
		}
		delete(o.blurTimers, field)
		o.mu.Unlock()
		o.CheckField(field)
	})
}

// CheckField validates one field now and updates its error.
func (o *Orchestrator) CheckField(field string) model.ValidationResult {
	o.mu.Lock()
	value := o.form.Get(field)
	target := Shipping
	if model.IsBillingField(field) {
		target = Billing
	}
	var cfg *model.CountryConfig
	if c, ok := o.countryCfg[target]; ok {
		cfg = &c
	}
	o.mu.Unlock()

	res := o.engine.ValidateField(field, value, validation.FieldContext{
		Country:  cfg,
		Required: o.required(field, cfg),
		Phone:    o.phoneCheck,
	})
	if msg, bad := res.Errors[field]; bad {
		o.engine.SetError(field, msg)
		o.ui.ShowFieldError(field, msg)
		return res
	}
	if o.engine.ClearError(field) {
		o.ui.ClearFieldError(field)
	}

	if field == model.FieldEmail && value != "" &&
		o.cfg.Prospect.AutoCreate && o.cfg.Prospect.TriggerOn == TriggerEmailEntry {
		o.startProspect()
	}
	return res
}

// required reports whether an empty field is an error on blur.
func (o *Orchestrator) required(field string, cfg *model.CountryConfig) bool {
	switch model.ShippingField(field) {
	case model.FieldEmail:
		return !model.IsBillingField(field)
	case model.FieldFirstName, model.FieldLastName, model.FieldAddress1,
		model.FieldCity, model.FieldPostal, model.FieldCountry:
		return true
	case model.FieldProvince:
		return cfg != nil && cfg.StateRequired
	case model.FieldPhone:
		return o.cfg.PhoneRequired && !model.IsBillingField(field)
	default:
		return false
	}
}

// phoneCheck prefers the field's phone widget over the digit pattern.
func (o *Orchestrator) phoneCheck(field, value string) bool {
	o.mu.Lock()
	f := o.phones[field]
	o.mu.Unlock()
	if f != nil {
		return f.IsValidNumber()
	}
	return validation.ValidPhone(value)
}

// SelectCountry applies a country choice to target and replaces its state
// list. When a newer selection overtakes this one its result is dropped
// and nil is returned.
func (o *Orchestrator) SelectCountry(ctx context.Context, t Target, code string) error {
	code = address.NormalizeCode(code)
	countryField := t.field(model.FieldCountry)
	provinceField := t.field(model.FieldProvince)

	o.mu.Lock()
	o.form[countryField] = code
	mirrorBilling := t == Shipping && o.sameAsShipping
	if mirrorBilling {
		o.form[model.BillingField(model.FieldCountry)] = code
	}
	phone := o.phones[t.field(model.FieldPhone)]
	ac := o.autocompletes[t]
	o.mu.Unlock()

	if o.engine.ClearError(countryField) {
		o.ui.ClearFieldError(countryField)
	}
	if phone != nil {
		phone.SetCountry(code)
	}
	if ac != nil {
		ac.SetCountryRestriction(code)
	}

	cascade := o.shippingCascade
	if t == Billing {
		cascade = o.billingCascade
	}
	lookup, err := cascade.Select(ctx, code)
	if errors.Is(err, address.ErrSuperseded) {
		o.logger.Printf("country_lookup_superseded target=%s country=%s", t, code)
		return nil
	}
	if err != nil {
		return err
	}

	policy := address.PolicyFor(lookup.Result)

	o.mu.Lock()
	if !cascade.IsCurrent(lookup.Seq) {
		o.mu.Unlock()
		return nil
	}
	o.countryCfg[t] = lookup.Result.CountryConfig
	prev := o.form.Get(provinceField)
	next := address.ReconcileState(prev, lookup.Result, policy)
	o.form[provinceField] = next
	if mirrorBilling && o.sameAsShipping {
		o.form[model.BillingField(model.FieldProvince)] = next
		o.countryCfg[Billing] = lookup.Result.CountryConfig
	}
	o.mu.Unlock()

	o.ui.SetStateOptions(t, lookup.Result.States, policy)
	if next != prev {
		o.ui.SetFieldValue(provinceField, next)
	}
	if next == "" && o.engine.ClearError(provinceField) {
		o.ui.ClearFieldError(provinceField)
	}
	return nil
}

// SetSameAsShipping toggles billing mirroring. Turning it on copies the
// current shipping values into billing; turning it off keeps them as the
// starting billing values.
func (o *Orchestrator) SetSameAsShipping(on bool) {
	o.mu.Lock()
	o.sameAsShipping = on
	var copied map[string]string
	if on {
		copied = make(map[string]string, len(mirrored))
		for _, f := range mirrored {
			o.form[model.BillingField(f)] = o.form[f]
			copied[model.BillingField(f)] = o.form[f]
		}
		if cfg, ok := o.countryCfg[Shipping]; ok {
			o.countryCfg[Billing] = cfg
		}
		o.billingCascade.Invalidate()
	}
	o.mu.Unlock()

	for _, f := range mirrored {
		key := model.BillingField(f)
		if on {
			o.ui.SetFieldValue(key, copied[key])
		}
		if o.engine.ClearError(key) {
			o.ui.ClearFieldError(key)
		}
	}
}

// SameAsShipping reports whether billing mirrors shipping.
func (o *Orchestrator) SameAsShipping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sameAsShipping
}

// ApplyPlace fills target's address from an autocomplete selection. The
// state is applied after the country's state list has resolved.
func (o *Orchestrator) ApplyPlace(ctx context.Context, t Target, p Place) error {
	for name, v := range map[string]string{
		model.FieldAddress1: p.Address1,
		model.FieldCity:     p.City,
		model.FieldPostal:   p.Postal,
	} {
		if v = strings.TrimSpace(v); v != "" {
			key := t.field(name)
			o.SetField(key, v)
			o.ui.SetFieldValue(key, v)
		}
	}

	if strings.TrimSpace(p.Country) != "" {
		o.ui.SetFieldValue(t.field(model.FieldCountry), address.NormalizeCode(p.Country))
		if err := o.SelectCountry(ctx, t, p.Country); err != nil {
			return err
		}
	}

	if state := strings.TrimSpace(p.State); state != "" {
		code := address.NormalizeCode(p.Country)
		if code == "" {
			o.mu.Lock()
			code = o.form.Get(t.field(model.FieldCountry))
			o.mu.Unlock()
		}
		if code == "" {
			return nil
		}
		res, err := o.resolver.GetStatesFor(ctx, code)
		if err != nil {
			return err
		}
		if s, ok := res.HasState(state); ok {
			key := t.field(model.FieldProvince)
			o.SetField(key, s.Code)
			o.ui.SetFieldValue(key, s.Code)
		}
	}
	return nil
}

// PhoneNumber returns the number to submit for a phone field: the
// widget's formatted number when one is attached, else the raw value.
func (o *Orchestrator) PhoneNumber(field string) string {
	o.mu.Lock()
	f := o.phones[field]
	raw := o.form.Get(field)
	o.mu.Unlock()
	if f != nil {
		if n := strings.TrimSpace(f.GetNumber()); n != "" {
			return n
		}
	}
	return raw
}
