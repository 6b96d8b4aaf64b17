package tokenization

import (
	"errors"
	"strings"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/model"
)

var (
	// ErrNotReady is returned when tokenization is requested before the
	// widget reported ready, or while another attempt is in flight.
	ErrNotReady = apperr.ErrNotReady
	// ErrIncompleteInput is returned when the holder name or expiration is
	// missing.
	ErrIncompleteInput = apperr.ErrIncompleteInput
	// ErrTimeout is returned when the widget did not answer in time.
	ErrTimeout = apperr.ErrTokenizationTimeout
	// ErrScriptUnavailable is returned when the vendor global never appeared.
	ErrScriptUnavailable = errors.New("tokenization script unavailable")
	// ErrDestroyed is returned by Initialize after Destroy.
	ErrDestroyed = errors.New("tokenization bridge destroyed")
)

// VendorRejectedError carries the widget's per-field messages.
type VendorRejectedError struct {
	Errors []model.VendorFieldError
}

func (e *VendorRejectedError) Error() string {
	msgs := e.Messages()
	if len(msgs) == 0 {
		return "card rejected by tokenization vendor"
	}
	return "card rejected: " + strings.Join(msgs, "; ")
}

// Kind classifies the error for apperr.
func (e *VendorRejectedError) Kind() string { return apperr.KindVendorRejected }

// Messages returns the vendor's messages in order.
func (e *VendorRejectedError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Message)
	}
	return out
}

// FormField maps a vendor attribute to the checkout form field it concerns.
func FormField(attribute string) string {
	switch strings.ToLower(attribute) {
	case FieldNumber:
		return model.FieldCardNumber
	case FieldCVV:
		return model.FieldCardCVV
	case "month":
		return model.FieldExpMonth
	case "year":
		return model.FieldExpYear
	case "first_name":
		return model.FieldFirstName
	case "last_name", "full_name":
		return model.FieldLastName
	default:
		return ""
	}
}
