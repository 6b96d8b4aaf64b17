package tokenization

import (
	"context"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// Widget events.
const (
	EventReady         = "ready"
	EventErrors        = "errors"
	EventPaymentMethod = "paymentMethod"
	EventValidation    = "validation"
	EventFieldEvent    = "fieldEvent"
)

// Card field identifiers used by the widget.
const (
	FieldNumber = "number"
	FieldCVV    = "cvv"
)

// Event is one callback delivered by the widget. Only the members relevant
// to Name are set.
type Event struct {
	Name string

	// paymentMethod
	Token string
	Card  model.CardMetadata

	// errors
	Errors []model.VendorFieldError

	// validation, fieldEvent
	Field     string
	Valid     bool
	EventType string
}

// WidgetConfig is handed to the widget's init entry point.
type WidgetConfig struct {
	EnvironmentKey  string
	NumberElementID string
	CVVElementID    string
	Styles          map[string]string
}

// Widget is the contracted surface of the vendor's iframe tokenizer.
type Widget interface {
	Init(cfg WidgetConfig) error
	On(event string, handler func(Event))
	TokenizeCreditCard(data model.CardData) error
	TransferFocus(field string)
	Reload()
}

// ScriptLoader loads the vendor script and exposes its global object once
// it becomes available.
type ScriptLoader interface {
	Load(ctx context.Context) error
	Widget() (Widget, bool)
}

// FieldLocator finds the number and CVV mount points on the page.
type FieldLocator interface {
	Locate() (numberID, cvvID string, ok bool)
}
