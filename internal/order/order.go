// Package order assembles the normalized order-submission payload from
// validated form state and a cart snapshot. Build is pure: no I/O, no
// shared state, and the returned payload shares no memory with its inputs.
package order

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
)

// FallbackCurrency is used when no other source names a valid currency.
const FallbackCurrency = "USD"

// apiPaymentMethods translates the UI vocabulary to the API vocabulary.
var apiPaymentMethods = map[model.PaymentMethod]string{
	model.PaymentCreditCard: "card_token",
	model.PaymentPayPal:     "paypal",
	model.PaymentApplePay:   "apple_pay",
	model.PaymentGooglePay:  "google_pay",
}

// APIPaymentMethod maps a UI payment method; unknown methods map to
// card_token.
func APIPaymentMethod(m model.PaymentMethod) string {
	if v, ok := apiPaymentMethods[m]; ok {
		return v
	}
	return "card_token"
}

// CurrencySources lists the candidates in priority order.
type CurrencySources struct {
	Campaign      string
	Selected      string
	BrowserLocale string
}

// ResolveCurrency returns the first valid ISO 4217 code among campaign,
// user-selected and browser-detected currency, falling back to USD. The
// browser currency is derived from the locale's region.
func ResolveCurrency(src CurrencySources) string {
	for _, code := range []string{src.Campaign, src.Selected} {
		if unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code))); err == nil {
			return unit.String()
		}
	}
	if unit, ok := localeCurrency(src.BrowserLocale); ok {
		return unit.String()
	}
	return FallbackCurrency
}

func localeCurrency(locale string) (currency.Unit, bool) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return currency.Unit{}, false
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return currency.Unit{}, false
	}
	region, conf := tag.Region()
	if conf == language.No {
		return currency.Unit{}, false
	}
	return currency.FromRegion(region)
}

// Options carries the submission-time inputs that are not form fields.
type Options struct {
	PaymentMethod model.PaymentMethod
	CardToken     string
	Currency      CurrencySources
	URLs          pagemeta.URLs
}

// Build converts form state and cart into an order payload. The billing
// record is consulted only when sameAsShipping is false; otherwise it is
// omitted and the API mirrors shipping from the boolean flag.
func Build(form model.FormState, cart model.CartSnapshot, billing *model.BillingAddress, sameAsShipping bool, opts Options) model.OrderPayload {
	p := model.OrderPayload{
		Lines:                 append([]model.CartLine{}, cart.Lines...),
		ShippingAddress:       shippingAddress(form),
		BillingSameAsShipping: sameAsShipping,
		PaymentDetail: model.PaymentDetail{
			PaymentMethod: APIPaymentMethod(opts.PaymentMethod),
		},
		User: model.User{
			FirstName:        form.Get(model.FieldFirstName),
			LastName:         form.Get(model.FieldLastName),
			Email:            strings.ToLower(form.Get(model.FieldEmail)),
			PhoneNumber:      form.Get(model.FieldPhone),
			AcceptsMarketing: form.Bool(model.FieldAcceptsMarketing),
		},
		Vouchers:   append([]string{}, cart.Vouchers...),
		Currency:   ResolveCurrency(opts.Currency),
		SuccessURL: opts.URLs.Success,
		FailureURL: opts.URLs.Failure,
	}

	if p.PaymentDetail.PaymentMethod == "card_token" {
		p.PaymentDetail.CardToken = opts.CardToken
	}

	if !sameAsShipping && billing != nil {
		b := billingAddress(*billing)
		p.BillingAddress = &b
	}

	if len(cart.Attribution) > 0 {
		p.Attribution = make(map[string]string, len(cart.Attribution))
		for k, v := range cart.Attribution {
			p.Attribution[k] = v
		}
	}
	return p
}

func shippingAddress(form model.FormState) model.Address {
	return model.Address{
		FirstName:   form.Get(model.FieldFirstName),
		LastName:    form.Get(model.FieldLastName),
		Line1:       form.Get(model.FieldAddress1),
		Line2:       form.Get(model.FieldAddress2),
		City:        form.Get(model.FieldCity),
		State:       form.Get(model.FieldProvince),
		Postcode:    form.Get(model.FieldPostal),
		Country:     strings.ToUpper(form.Get(model.FieldCountry)),
		PhoneNumber: form.Get(model.FieldPhone),
	}
}

func billingAddress(b model.BillingAddress) model.Address {
	return model.Address{
		FirstName:   strings.TrimSpace(b.FirstName),
		LastName:    strings.TrimSpace(b.LastName),
		Line1:       strings.TrimSpace(b.Address1),
		Line2:       strings.TrimSpace(b.Address2),
		City:        strings.TrimSpace(b.City),
		State:       strings.TrimSpace(b.Province),
		Postcode:    strings.TrimSpace(b.Postal),
		Country:     strings.ToUpper(strings.TrimSpace(b.Country)),
		PhoneNumber: strings.TrimSpace(b.Phone),
	}
}

// ProspectRequest builds the partial-contact prospect cart request.
func ProspectRequest(form model.FormState, cart model.CartSnapshot, cur CurrencySources) model.ProspectCartRequest {
	req := model.ProspectCartRequest{
		Lines: append([]model.CartLine{}, cart.Lines...),
		User: model.User{
			FirstName:        form.Get(model.FieldFirstName),
			LastName:         form.Get(model.FieldLastName),
			Email:            strings.ToLower(form.Get(model.FieldEmail)),
			PhoneNumber:      form.Get(model.FieldPhone),
			AcceptsMarketing: form.Bool(model.FieldAcceptsMarketing),
		},
		Currency: ResolveCurrency(cur),
	}
	if len(cart.Attribution) > 0 {
		req.Attribution = make(map[string]string, len(cart.Attribution))
		for k, v := range cart.Attribution {
			req.Attribution[k] = v
		}
	}
	return req
}
