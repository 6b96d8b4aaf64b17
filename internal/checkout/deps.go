package checkout

import (
	"context"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/order"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
	"github.com/iliamunaev/checkout-engine/internal/tokenization"
)

// UI renders what the orchestrator decides. Calls may arrive from any
// goroutine; implementations marshal them onto their own thread.
type UI interface {
	SetLoading(on bool)
	SetCountries(countries []model.Country)
	SetStateOptions(target Target, states []model.State, policy address.FieldPolicy)
	SetFieldValue(field, value string)
	ShowFieldError(field, message string)
	ClearFieldError(field string)
	FocusField(field string)
	ShowBanner(message string)
	HideBanner()
}

// OrderAPI is the part of the commerce API the orchestrator calls.
type OrderAPI interface {
	CreateOrder(ctx context.Context, p model.OrderPayload) (model.Order, error)
	CreateCart(ctx context.Context, req model.ProspectCartRequest) (string, error)
}

// Tokenizer is the card tokenization bridge.
type Tokenizer interface {
	Initialize(ctx context.Context) error
	Available() bool
	ValidNumber() bool
	ValidCVV() bool
	TokenizeCard(ctx context.Context, data model.CardData) (model.TokenOutcome, error)
	TransferFocus(field string)
	Destroy()
}

var _ Tokenizer = (*tokenization.Bridge)(nil)

// ExpressRequest is handed to the express checkout collaborator.
type ExpressRequest struct {
	AttemptID string
	Method    model.PaymentMethod
	Cart      model.CartSnapshot
	Currency  string
	URLs      pagemeta.URLs
}

// ExpressCheckout runs a one-click payment flow outside the form.
type ExpressCheckout interface {
	Start(ctx context.Context, req ExpressRequest) error
}

// CartSource supplies the cart at submission time.
type CartSource interface {
	Snapshot() model.CartSnapshot
}

// PhoneFormatter is the per-field phone widget.
type PhoneFormatter interface {
	GetNumber() string
	IsValidNumber() bool
	SetCountry(code string)
}

// Autocomplete is the address autocomplete widget of one address target.
type Autocomplete interface {
	SetCountryRestriction(code string)
}

// Place is a selected autocomplete suggestion, already split into
// address components.
type Place struct {
	Address1 string
	City     string
	State    string
	Postal   string
	Country  string
}

// Target is the address block a field event concerns.
type Target int

const (
	Shipping Target = iota
	Billing
)

func (t Target) String() string {
	if t == Billing {
		return "billing"
	}
	return "shipping"
}

// field returns the form key of a shipping field name in this target.
func (t Target) field(name string) string {
	if t == Billing {
		return model.BillingField(name)
	}
	return name
}

// TriggerOn says when the prospect cart is created.
type TriggerOn string

const (
	TriggerFormStart  TriggerOn = "formStart"
	TriggerEmailEntry TriggerOn = "emailEntry"
	TriggerManual     TriggerOn = "manual"
)

// ProspectConfig controls prospect cart creation.
type ProspectConfig struct {
	TriggerOn  TriggerOn
	AutoCreate bool
	TTL        time.Duration
}

// Timeouts bounds the orchestrator's timers and calls.
type Timeouts struct {
	BlurDebounce  time.Duration
	BannerDismiss time.Duration
	CreateOrder   time.Duration
}

// Config is the typed checkout configuration.
type Config struct {
	DefaultCountry       string
	DefaultPaymentMethod model.PaymentMethod
	// ValidateExpress runs full form validation before express methods and
	// then creates the order here instead of handing off.
	ValidateExpress bool
	PhoneRequired   bool
	Currency        order.CurrencySources
	URLs            pagemeta.URLs
	Prospect        ProspectConfig
	Timeouts        Timeouts
}

const (
	defaultBlurDebounce  = 300 * time.Millisecond
	defaultBannerDismiss = 10 * time.Second
	defaultCreateOrder   = 60 * time.Second
	defaultProspectTTL   = 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.DefaultPaymentMethod == "" {
		c.DefaultPaymentMethod = model.PaymentCreditCard
	}
	if c.Prospect.TriggerOn == "" {
		c.Prospect.TriggerOn = TriggerEmailEntry
	}
	if c.Prospect.TTL <= 0 {
		c.Prospect.TTL = defaultProspectTTL
	}
	if c.Timeouts.BlurDebounce <= 0 {
		c.Timeouts.BlurDebounce = defaultBlurDebounce
	}
	if c.Timeouts.BannerDismiss <= 0 {
		c.Timeouts.BannerDismiss = defaultBannerDismiss
	}
	if c.Timeouts.CreateOrder <= 0 {
		c.Timeouts.CreateOrder = defaultCreateOrder
	}
	return c
}
