// Package model defines the checkout data model shared by the engine's
// components: form state, address configuration, validation results,
// tokenization outcomes and the order-submission payload.
package model

import (
	"sort"
	"strings"
)

// Shipping and contact field names. The namespace is flat; billing fields
// carry BillingPrefix.
const (
	FieldEmail            = "email"
	FieldFirstName        = "first_name"
	FieldLastName         = "last_name"
	FieldCountry          = "country"
	FieldAddress1         = "address1"
	FieldAddress2         = "address2"
	FieldCity             = "city"
	FieldProvince         = "province"
	FieldPostal           = "postal"
	FieldPhone            = "phone"
	FieldAcceptsMarketing = "accepts_marketing"

	FieldCardNumber = "credit_card_number"
	FieldCardCVV    = "credit_card_cvv"
	FieldExpMonth   = "exp_month"
	FieldExpYear    = "exp_year"

	BillingPrefix = "billing-"
)

// AddressFields lists the fields that make up an address record, in form order.
var AddressFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldAddress1,
	FieldAddress2,
	FieldCity,
	FieldProvince,
	FieldPostal,
	FieldCountry,
	FieldPhone,
}

// BillingField returns the billing-namespaced name for a shipping field.
func BillingField(name string) string {
	return BillingPrefix + name
}

// IsBillingField reports whether name belongs to the billing namespace.
func IsBillingField(name string) bool {
	return strings.HasPrefix(name, BillingPrefix)
}

// ShippingField strips the billing prefix, if any.
func ShippingField(name string) string {
	return strings.TrimPrefix(name, BillingPrefix)
}

// FormState maps field names to their current values. Boolean fields
// (checkboxes) are stored as "true" or "false".
type FormState map[string]string

// Get returns the trimmed value of a field.
func (f FormState) Get(name string) string {
	return strings.TrimSpace(f[name])
}

// Bool returns the boolean value of a checkbox-style field.
func (f FormState) Bool(name string) bool {
	switch strings.ToLower(f.Get(name)) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
}

// Clone returns an independent copy.
func (f FormState) Clone() FormState {
	out := make(FormState, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f FormState) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BillingAddress is the dedicated billing record used when billing does not
// mirror shipping.
type BillingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	Province  string `json:"province,omitempty"`
	Postal    string `json:"postal"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

// Values returns the record keyed by shipping field names.
func (b BillingAddress) Values() FormState {
	return FormState{
		FieldFirstName: b.FirstName,
		FieldLastName:  b.LastName,
		FieldAddress1:  b.Address1,
		FieldAddress2:  b.Address2,
		FieldCity:      b.City,
		FieldProvince:  b.Province,
		FieldPostal:    b.Postal,
		FieldCountry:   b.Country,
		FieldPhone:     b.Phone,
	}
}

// BillingFromForm reads the billing-prefixed fields of a form.
func BillingFromForm(f FormState) BillingAddress {
	return BillingAddress{
		FirstName: f.Get(BillingField(FieldFirstName)),
		LastName:  f.Get(BillingField(FieldLastName)),
		Address1:  f.Get(BillingField(FieldAddress1)),
		Address2:  f.Get(BillingField(FieldAddress2)),
		City:      f.Get(BillingField(FieldCity)),
		Province:  f.Get(BillingField(FieldProvince)),
		Postal:    f.Get(BillingField(FieldPostal)),
		Country:   f.Get(BillingField(FieldCountry)),
		Phone:     f.Get(BillingField(FieldPhone)),
	}
}

// PaymentMethod is the UI's internal payment-method vocabulary.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit-card"
	PaymentPayPal     PaymentMethod = "paypal"
	PaymentApplePay   PaymentMethod = "apple_pay"
	PaymentGooglePay  PaymentMethod = "google_pay"
)

// IsExpress reports whether the method is a one-click express method.
func (m PaymentMethod) IsExpress() bool {
	switch m {
	case PaymentPayPal, PaymentApplePay, PaymentGooglePay:
		return true
	default:
		return false
	}
}
