package checkout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/commerce"
	"github.com/iliamunaev/checkout-engine/internal/events"
	"github.com/iliamunaev/checkout-engine/internal/guard"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/tokenization"
)

func initialized(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := newHarness(t, mutate)
	_, err := h.o.Initialize(context.Background())
	require.NoError(t, err)
	return h
}

func TestInitializeRunsStepsAndSelectsDefaultCountry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	steps, err := h.o.Initialize(context.Background())
	require.NoError(t, err)

	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, "ok", s.Status, s.Name)
	}
	assert.Len(t, h.ui.countries, 3)
	assert.Equal(t, "US", h.o.Form().Get(model.FieldCountry))

	opts := h.ui.lastOptions()
	assert.Equal(t, Shipping, opts.target)
	assert.True(t, opts.policy.Required)
	assert.Contains(t, h.published(), events.CheckoutFormInitialized)
}

func TestSubmitBeforeInitializeIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	res := h.o.Submit(context.Background())

	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, h.api.orders())
}

func TestSubmitCardEndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		order        model.Order
		wantRedirect string
	}{
		{
			name:         "payment_complete_url",
			order:        model.Order{RefID: "R1", Number: 1001, PaymentCompleteURL: "https://pay.example.com/complete/R1"},
			wantRedirect: "https://pay.example.com/complete/R1",
		},
		{
			name:         "success_with_ref_id",
			order:        model.Order{RefID: "R1", Number: 1001},
			wantRedirect: "https://shop.example.com/success?ref_id=R1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := initialized(t, nil)
			h.api.order = tt.order
			h.fill()

			res := h.o.Submit(context.Background())
			require.Equal(t, OutcomeSucceeded, res.Outcome, "err=%v", res.Err)

			orders := h.api.orders()
			require.Len(t, orders, 1)
			assert.Equal(t, "card_token", orders[0].PaymentDetail.PaymentMethod)
			assert.Equal(t, "tok_123", orders[0].PaymentDetail.CardToken)
			assert.Nil(t, orders[0].BillingAddress)
			assert.Equal(t, "US", orders[0].ShippingAddress.Country)

			assert.Equal(t, []string{tt.wantRedirect}, h.navigator.all())
			assert.Equal(t, tt.wantRedirect, res.Redirect)
			assert.Equal(t, StateSucceeded, h.o.State())
			assert.False(t, h.o.Processing())

			require.Len(t, h.tokenizer.calls, 1)
			assert.Equal(t, model.CardData{FullName: "Jane Doe", Month: "12", Year: "2030"}, h.tokenizer.calls[0])

			last, ok, err := h.store.LastOrder(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "R1", last.RefID)

			assert.Subset(t, h.published(), []events.Name{events.CheckoutStarted, events.PaymentTokenized, events.OrderCompleted})

			again := h.o.Submit(context.Background())
			assert.Equal(t, OutcomeIgnored, again.Outcome)
			assert.Len(t, h.api.orders(), 1)
		})
	}
}

func TestOrderCompletedCarriesTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		currency     string
		wantCurrency string
	}{
		{name: "answer_names_currency", currency: "EUR", wantCurrency: "EUR"},
		{name: "submitted_currency", currency: "", wantCurrency: "USD"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := initialized(t, nil)
			h.api.order = model.Order{RefID: "R1", Number: 1001, TotalInclTax: decimal.RequireFromString("49.90"), Currency: tt.currency}
			h.fill()

			require.Equal(t, OutcomeSucceeded, h.o.Submit(context.Background()).Outcome)

			e, ok := h.event(events.OrderCompleted)
			require.True(t, ok)
			assert.Equal(t, "R1", e.RefID)
			assert.True(t, e.Total.Equal(decimal.RequireFromString("49.9")), "total=%s", e.Total)
			assert.Equal(t, tt.wantCurrency, e.Currency)
		})
	}
}

func TestSubmitWhileProcessingIsIgnored(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.api.block = make(chan struct{})
	h.api.entered = make(chan struct{}, 1)
	h.fill()

	done := make(chan Result, 1)
	go func() { done <- h.o.Submit(context.Background()) }()

	select {
	case <-h.api.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the api")
	}
	assert.True(t, h.o.Processing())
	assert.Equal(t, StateSubmitting, h.o.State())

	second := h.o.Submit(context.Background())
	assert.Equal(t, OutcomeIgnored, second.Outcome)

	close(h.api.block)
	first := <-done
	assert.Equal(t, OutcomeSucceeded, first.Outcome)
	assert.Len(t, h.api.orders(), 1)
	assert.Equal(t, 1, h.tokenizer.tokenizeCalls())
}

func TestSubmitInvalidFocusesFirstFailingField(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.fill()
	h.o.SetField(model.FieldEmail, "John..Doe@mail.com")
	h.o.SetField(model.FieldFirstName, "")

	res := h.o.Submit(context.Background())

	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, model.FieldFirstName, res.Validation.FirstErrorField)
	assert.Contains(t, res.Validation.Errors, model.FieldEmail)
	assert.Equal(t, apperr.KindInputInvalid, apperr.Kind(res.Err))

	assert.Equal(t, []string{model.FieldFirstName}, h.ui.focused)
	assert.Contains(t, h.ui.errorsSnapshot(), model.FieldEmail)
	assert.Zero(t, h.tokenizer.tokenizeCalls())
	assert.Empty(t, h.api.orders())
	assert.Equal(t, StateIdle, h.o.State())
	assert.False(t, h.o.Processing())
}

func TestSubmitCardFieldsInvalidNeverTokenizes(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.tokenizer.valid = false
	h.fill()

	res := h.o.Submit(context.Background())

	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, model.FieldCardNumber, res.Validation.FirstErrorField)
	assert.Equal(t, []string{tokenization.FieldNumber}, h.tokenizer.focused)
	assert.Zero(t, h.tokenizer.tokenizeCalls())
}

func TestSubmitTokenizationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantKind   string
		wantField  string
		wantBanner bool
	}{
		{
			name:      "vendor_rejected_field",
			err:       &tokenization.VendorRejectedError{Errors: []model.VendorFieldError{{Attribute: "number", Message: "Card number is invalid"}}},
			wantKind:  apperr.KindVendorRejected,
			wantField: model.FieldCardNumber,
		},
		{name: "timeout", err: tokenization.ErrTimeout, wantKind: apperr.KindTokenizationTimeout, wantBanner: true},
		{name: "not_ready", err: tokenization.ErrNotReady, wantKind: apperr.KindNotReady, wantBanner: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := initialized(t, nil)
			h.tokenizer.err = tt.err
			h.fill()

			res := h.o.Submit(context.Background())

			require.Equal(t, OutcomeFailed, res.Outcome)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.wantKind, res.Failure.Kind)
			if tt.wantField != "" {
				assert.Contains(t, h.ui.errorsSnapshot(), tt.wantField)
			}
			if tt.wantBanner {
				assert.NotEmpty(t, h.ui.banners)
			}
			assert.Empty(t, h.api.orders())
			assert.Equal(t, StateIdle, h.o.State())
			assert.Contains(t, h.published(), events.PaymentError)

			h.tokenizer.err = nil
			retry := h.o.Submit(context.Background())
			assert.Equal(t, OutcomeSucceeded, retry.Outcome)
		})
	}
}

func TestSubmitAPIErrorsMapToFields(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	var data commerce.ResponseData
	require.NoError(t, json.Unmarshal([]byte(`{"errors":{"user":{"email":["Email is blocked."]},"shipping_address":{"line4":["Unknown city."]}}}`), &data))
	h.api.err = &commerce.APIError{Status: 400, ResponseData: data}
	h.fill()

	res := h.o.Submit(context.Background())

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, apperr.KindAPIValidation, res.Failure.Kind)
	assert.Equal(t, map[string]string{
		model.FieldEmail: "Email is blocked.",
		model.FieldCity:  "Unknown city.",
	}, res.Failure.Fields)
	assert.Equal(t, "Email is blocked.", h.ui.errorsSnapshot()[model.FieldEmail])
	assert.Equal(t, model.FieldEmail, h.ui.focused[len(h.ui.focused)-1])
	assert.Equal(t, StateIdle, h.o.State())
}

func TestSubmitPaymentErrorBannerAutoDismisses(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.api.err = &commerce.APIError{Status: 400, ResponseData: commerce.ResponseData{PaymentDetails: json.RawMessage(`"Card declined"`)}}
	h.fill()

	res := h.o.Submit(context.Background())

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, apperr.KindPaymentProcessor, res.Failure.Kind)
	assert.Equal(t, []string{"Card declined"}, h.ui.banners)
	assert.Eventually(t, func() bool { return h.ui.hiddenCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestExpressHandOffSkipsValidation(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.o.SetPaymentMethod(model.PaymentPayPal)

	res := h.o.Submit(context.Background())

	require.Equal(t, OutcomeHandedOff, res.Outcome)
	require.Len(t, h.express.calls, 1)
	assert.Equal(t, model.PaymentPayPal, h.express.calls[0].Method)
	assert.Equal(t, "USD", h.express.calls[0].Currency)
	assert.Empty(t, h.api.orders())
	assert.Zero(t, h.tokenizer.tokenizeCalls())
	assert.Equal(t, StateIdle, h.o.State())
}

func TestExpressWithValidation(t *testing.T) {
	t.Parallel()

	h := initialized(t, func(c *Config) { c.ValidateExpress = true })
	h.o.SetPaymentMethod(model.PaymentApplePay)

	res := h.o.Submit(context.Background())
	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Empty(t, h.express.calls)

	h.fill()
	h.api.order = model.Order{RefID: "R2", PaymentCompleteURL: "https://pay.example.com/apple"}
	res = h.o.Submit(context.Background())

	require.Equal(t, OutcomeSucceeded, res.Outcome)
	orders := h.api.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "apple_pay", orders[0].PaymentDetail.PaymentMethod)
	assert.Empty(t, orders[0].PaymentDetail.CardToken)
	assert.Zero(t, h.tokenizer.tokenizeCalls())
	assert.Equal(t, []string{"https://pay.example.com/apple"}, h.navigator.all())
}

func TestSameAsShippingOmitsStaleBilling(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.fill()

	h.o.SetSameAsShipping(false)
	h.o.SetField(model.BillingField(model.FieldCity), "Paris")
	h.o.SetSameAsShipping(true)

	res := h.o.Submit(context.Background())
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	orders := h.api.orders()
	require.Len(t, orders, 1)
	assert.Nil(t, orders[0].BillingAddress)
	assert.True(t, orders[0].BillingSameAsShipping)
}

func TestSeparateBillingIsValidatedAndSent(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.fill()
	h.o.SetSameAsShipping(false)

	assert.Equal(t, "Springfield", h.o.Form().Get(model.BillingField(model.FieldCity)), "billing starts from the mirrored shipping values")

	h.o.SetField(model.BillingField(model.FieldCity), "1")
	res := h.o.Submit(context.Background())
	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, model.BillingField(model.FieldCity), res.Validation.FirstErrorField)

	h.o.SetField(model.BillingField(model.FieldCity), "Chicago")
	res = h.o.Submit(context.Background())
	require.Equal(t, OutcomeSucceeded, res.Outcome, "err=%v", res.Err)

	orders := h.api.orders()
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].BillingAddress)
	assert.Equal(t, "Chicago", orders[0].BillingAddress.City)
}

func TestPageShowResetsProcessingAndGuardFiresOnce(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.fill()
	require.Equal(t, OutcomeSucceeded, h.o.Submit(context.Background()).Outcome)
	h.o.SetPaymentMethod(model.PaymentPayPal)

	first, err := h.o.OnPageShow(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, first.Shown)
	assert.Equal(t, "R1", first.RefID)
	assert.Equal(t, guard.TriggerCacheRestore, first.Trigger)

	second, err := h.o.OnPageShow(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, second.Shown)

	plain, err := h.o.OnPageShow(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, plain.Shown)
	assert.Equal(t, guard.TriggerPageShow, plain.Trigger)

	assert.Equal(t, 1, h.prompter.count())
	assert.Equal(t, StateIdle, h.o.State())
	assert.False(t, h.o.Processing())
	assert.Equal(t, model.PaymentCreditCard, h.o.PaymentMethod())
	assert.Empty(t, h.o.Form().Get(model.FieldEmail), "start over clears the form")
	assert.Equal(t, "US", h.o.Form().Get(model.FieldCountry), "start over restores defaults")
}

func TestPageShowAbandonsInFlightAttempt(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.api.block = make(chan struct{})
	h.api.entered = make(chan struct{}, 1)
	h.fill()

	done := make(chan Result, 1)
	go func() { done <- h.o.Submit(context.Background()) }()
	<-h.api.entered

	_, err := h.o.OnPageShow(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, h.o.Processing())
	assert.Equal(t, StateIdle, h.o.State())

	close(h.api.block)
	res := <-done
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Empty(t, h.navigator.all(), "abandoned attempt must not navigate")
	assert.Equal(t, StateIdle, h.o.State())
}

func TestCountrySwitchRaceKeepsLatest(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	gate := h.source.gate("FR")

	errs := make(chan error, 1)
	go func() { errs <- h.o.SelectCountry(context.Background(), Shipping, "FR") }()

	require.Eventually(t, func() bool { return h.o.Form().Get(model.FieldCountry) == "FR" }, time.Second, time.Millisecond)
	require.NoError(t, h.o.SelectCountry(context.Background(), Shipping, "GB"))
	close(gate)
	require.NoError(t, <-errs)

	opts := h.ui.lastOptions()
	assert.False(t, opts.policy.Visible, "GB has no states and no requirement")
	assert.Equal(t, "GB", h.o.Form().Get(model.FieldCountry))
	assert.Equal(t, "", h.o.Form().Get(model.FieldProvince))
}

func TestSameAsShippingSupersedesBillingLookup(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.o.SetField(model.FieldProvince, "IL")
	h.o.SetSameAsShipping(false)
	gate := h.source.gate("FR")

	errs := make(chan error, 1)
	go func() { errs <- h.o.SelectCountry(context.Background(), Billing, "FR") }()

	require.Eventually(t, func() bool { return h.source.calls("FR") > 0 }, time.Second, time.Millisecond)
	h.o.SetSameAsShipping(true)
	close(gate)
	require.NoError(t, <-errs)

	form := h.o.Form()
	assert.Equal(t, "US", form.Get(model.BillingField(model.FieldCountry)))
	assert.Equal(t, "IL", form.Get(model.BillingField(model.FieldProvince)), "stale lookup must not blank the mirrored state")

	h.o.mu.Lock()
	billingCfg := h.o.countryCfg[Billing]
	h.o.mu.Unlock()
	assert.Equal(t, "US", billingCfg.Code)
}

func TestSelectCountryKeepsCompatibleState(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.o.SetField(model.FieldProvince, "NY")

	require.NoError(t, h.o.SelectCountry(context.Background(), Shipping, "US"))
	assert.Equal(t, "NY", h.o.Form().Get(model.FieldProvince))

	require.NoError(t, h.o.SelectCountry(context.Background(), Shipping, "GB"))
	assert.Equal(t, "", h.o.Form().Get(model.FieldProvince))
	assert.Equal(t, "GB", h.o.Form().Get(model.BillingField(model.FieldCountry)), "billing mirrors shipping")
}

func TestBlurIsDebounced(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	h.o.SetField(model.FieldEmail, "not-an-email")
	h.o.BlurField(model.FieldEmail)
	h.o.BlurField(model.FieldEmail)

	assert.NotContains(t, h.ui.errorsSnapshot(), model.FieldEmail)
	assert.Eventually(t, func() bool {
		_, ok := h.ui.errorsSnapshot()[model.FieldEmail]
		return ok
	}, time.Second, 5*time.Millisecond)

	h.o.SetField(model.FieldEmail, "jane@example.com")
	assert.NotContains(t, h.ui.errorsSnapshot(), model.FieldEmail, "typing clears the error")
}

func TestDestroyStopsPendingTimers(t *testing.T) {
	t.Parallel()

	h := initialized(t, func(c *Config) { c.Timeouts.BlurDebounce = 50 * time.Millisecond })
	h.o.SetField(model.FieldEmail, "bad")
	h.o.BlurField(model.FieldEmail)
	h.o.Destroy()

	time.Sleep(100 * time.Millisecond)
	assert.NotContains(t, h.ui.errorsSnapshot(), model.FieldEmail)
	assert.Equal(t, OutcomeIgnored, h.o.Submit(context.Background()).Outcome)
}

func TestProspectCartOnEmailEntry(t *testing.T) {
	t.Parallel()

	h := initialized(t, func(c *Config) {
		c.Prospect = ProspectConfig{TriggerOn: TriggerEmailEntry, AutoCreate: true, TTL: time.Hour}
	})
	h.o.SetField(model.FieldEmail, "jane@example.com")
	h.o.CheckField(model.FieldEmail)
	h.o.CheckField(model.FieldEmail)

	require.Eventually(t, func() bool {
		_, ok, _ := h.store.ProspectCart(context.Background())
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.api.cartCalls())

	c, _, err := h.store.ProspectCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cart-1", c.ID)
	assert.Equal(t, testNow.Add(time.Hour), c.ExpiresAt)
}

func TestProspectCartOnFormStartWaitsForValidEmail(t *testing.T) {
	t.Parallel()

	h := initialized(t, func(c *Config) {
		c.Prospect = ProspectConfig{TriggerOn: TriggerFormStart, AutoCreate: true, TTL: time.Hour}
	})
	h.o.SetField(model.FieldFirstName, "J")
	h.o.SetField(model.FieldEmail, "jane@")
	assert.Zero(t, h.api.cartCalls())

	h.o.SetField(model.FieldEmail, "jane@example.com")
	h.o.SetField(model.FieldFirstName, "Jane")

	require.Eventually(t, func() bool {
		_, ok, _ := h.store.ProspectCart(context.Background())
		return ok
	}, time.Second, 5*time.Millisecond)

	h.o.SetField(model.FieldLastName, "Doe")
	assert.Equal(t, 1, h.api.cartCalls())

	c, _, err := h.store.ProspectCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", c.Email)
}

func TestProspectCartReusesStoredCart(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	require.NoError(t, h.store.SaveProspectCart(context.Background(), model.ProspectCart{ID: "old", ExpiresAt: testNow.Add(time.Minute)}))
	h.o.SetField(model.FieldEmail, "jane@example.com")

	c, err := h.o.CreateProspectCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", c.ID)
	assert.Zero(t, h.api.cartCalls())
}

type fakePhone struct {
	valid   bool
	number  string
	country string
}

func (p *fakePhone) GetNumber() string      { return p.number }
func (p *fakePhone) IsValidNumber() bool    { return p.valid }
func (p *fakePhone) SetCountry(code string) { p.country = code }

func TestPhoneWidgetDrivesValidationAndSubmission(t *testing.T) {
	t.Parallel()

	h := initialized(t, func(c *Config) { c.PhoneRequired = true })
	phone := &fakePhone{valid: false, number: "+15551234567"}
	h.o.AttachPhone(model.FieldPhone, phone)

	require.NoError(t, h.o.SelectCountry(context.Background(), Shipping, "US"))
	assert.Equal(t, "US", phone.country)

	h.fill()
	h.o.SetField(model.FieldPhone, "555 123 4567")
	res := h.o.Submit(context.Background())
	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Contains(t, res.Validation.Errors, model.FieldPhone)

	phone.valid = true
	res = h.o.Submit(context.Background())
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "+15551234567", h.api.orders()[0].User.PhoneNumber)
}

type fakeAutocomplete struct{ restriction string }

func (a *fakeAutocomplete) SetCountryRestriction(code string) { a.restriction = code }

func TestApplyPlaceFillsAddress(t *testing.T) {
	t.Parallel()

	h := initialized(t, nil)
	ac := &fakeAutocomplete{}
	h.o.AttachAutocomplete(Shipping, ac)

	err := h.o.ApplyPlace(context.Background(), Shipping, Place{
		Address1: "5 Lake Shore Dr", City: "Chicago", State: "Illinois", Postal: "60601", Country: "us",
	})
	require.NoError(t, err)

	form := h.o.Form()
	assert.Equal(t, "5 Lake Shore Dr", form.Get(model.FieldAddress1))
	assert.Equal(t, "Chicago", form.Get(model.FieldCity))
	assert.Equal(t, "60601", form.Get(model.FieldPostal))
	assert.Equal(t, "IL", form.Get(model.FieldProvince))
	assert.Equal(t, "US", ac.restriction)
}
