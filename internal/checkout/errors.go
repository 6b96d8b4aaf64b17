package checkout

import (
	"errors"
	"sort"
	"strings"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/commerce"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/tokenization"
)

// Failure is the user-facing rendering of a failed attempt.
type Failure struct {
	Kind   string
	Fields map[string]string
	Banner string
}

var kindMessages = map[string]string{
	apperr.KindInputInvalid:        "Please review the highlighted fields.",
	apperr.KindNotReady:            "The payment form is still loading. Please try again in a moment.",
	apperr.KindIncompleteInput:     "Please enter the card holder name and expiration date.",
	apperr.KindVendorRejected:      "Your card details were not accepted. Please check them and try again.",
	apperr.KindTokenizationTimeout: "The payment service did not respond. Please try again.",
	apperr.KindAPIValidation:       "Please check your details and try again.",
	apperr.KindPaymentProcessor:    "Your payment was declined. Please check your card details or use another payment method.",
	apperr.KindRateLimited:         "Too many attempts. Please wait a moment and try again.",
	apperr.KindUnauthorized:        "Checkout is temporarily unavailable. Please refresh the page and try again.",
	apperr.KindServerError:         "Something went wrong on our side and your order was not placed. Please try again.",
	apperr.KindTransport:           "We could not reach the store. Check your connection and try again.",
	apperr.KindTimeout:             "The request took too long and your order was not placed. Please try again.",
}

const genericMessage = "Something went wrong. Please try again."

// addressFields maps API address keys to form field names.
var addressFields = map[string]string{
	"first_name":   model.FieldFirstName,
	"last_name":    model.FieldLastName,
	"line1":        model.FieldAddress1,
	"line2":        model.FieldAddress2,
	"line4":        model.FieldCity,
	"state":        model.FieldProvince,
	"postcode":     model.FieldPostal,
	"country":      model.FieldCountry,
	"phone_number": model.FieldPhone,
}

var userFields = map[string]string{
	"first_name":   model.FieldFirstName,
	"last_name":    model.FieldLastName,
	"email":        model.FieldEmail,
	"phone_number": model.FieldPhone,
}

// formField maps a dotted API error path to a local field.
func formField(path string) (string, bool) {
	group, key, ok := strings.Cut(path, ".")
	if !ok {
		key, group = group, ""
	}
	switch group {
	case "shipping_address":
		f, ok := addressFields[key]
		return f, ok
	case "billing_address":
		f, ok := addressFields[key]
		return model.BillingField(f), ok
	case "user":
		f, ok := userFields[key]
		return f, ok
	case "payment_detail":
		if key == "card_token" {
			return model.FieldCardNumber, true
		}
		return "", false
	case "":
		f, ok := userFields[key]
		return f, ok
	default:
		return "", false
	}
}

// Classify turns an error from any submit stage into field-scoped and
// form-scoped messages.
func Classify(err error) Failure {
	kind := apperr.Kind(err)
	f := Failure{Kind: kind, Fields: make(map[string]string)}

	var rejected *tokenization.VendorRejectedError
	var apiErr *commerce.APIError
	switch {
	case errors.As(err, &rejected):
		var general []string
		for _, fe := range rejected.Errors {
			if field := tokenization.FormField(fe.Attribute); field != "" {
				if _, dup := f.Fields[field]; !dup {
					f.Fields[field] = fe.Message
				}
				continue
			}
			if fe.Message != "" {
				general = append(general, fe.Message)
			}
		}
		if len(general) > 0 {
			f.Banner = strings.Join(general, " ")
		}

	case errors.As(err, &apiErr) && kind == apperr.KindAPIValidation:
		var general []string
		for path, msg := range apiErr.FieldErrors() {
			if field, ok := formField(path); ok {
				f.Fields[field] = msg
				continue
			}
			general = append(general, msg)
		}
		switch {
		case apiErr.ResponseData.Message != "":
			f.Banner = apiErr.ResponseData.Message
		case apiErr.ResponseData.Detail != "":
			f.Banner = apiErr.ResponseData.Detail
		case len(general) > 0:
			sort.Strings(general)
			f.Banner = strings.Join(general, " ")
		}

	case errors.As(err, &apiErr) && kind == apperr.KindPaymentProcessor:
		f.Banner = apiErr.PaymentMessage()
	}

	if f.Banner == "" && len(f.Fields) == 0 {
		f.Banner = kindMessages[kind]
		if f.Banner == "" {
			f.Banner = genericMessage
		}
	}
	return f
}
