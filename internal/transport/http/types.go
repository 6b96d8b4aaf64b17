package httptransport

import (
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
)

// ErrorPayload is the error member of every failed response.
type ErrorPayload struct {
	Kind     string            `json:"kind"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	Problems []string          `json:"problems,omitempty"`
}

// Response is the envelope of every /v1 response.
type Response struct {
	Status     string                  `json:"status"`
	Data       any                     `json:"data,omitempty"`
	Validation *model.ValidationResult `json:"validation,omitempty"`
	Error      *ErrorPayload           `json:"error,omitempty"`
}

// CardState is the widget-reported validity of the card fields, forwarded
// by the browser because the card data itself never leaves the iframe.
type CardState struct {
	NumberValid bool `json:"number_valid"`
	CVVValid    bool `json:"cvv_valid"`
}

func (c CardState) ValidNumber() bool { return c.NumberValid }
func (c CardState) ValidCVV() bool    { return c.CVVValid }

// ValidateRequest asks for a whole-form validation pass.
type ValidateRequest struct {
	Form           model.FormState `json:"form"`
	SameAsShipping *bool           `json:"billing_same_as_shipping,omitempty"`
	IncludePayment bool            `json:"include_payment"`
	Card           *CardState      `json:"card,omitempty"`
}

func (r ValidateRequest) sameAsShipping() bool {
	return r.SameAsShipping == nil || *r.SameAsShipping
}

// PageContext describes the checkout page the browser is on.
type PageContext struct {
	URL  string        `json:"url"`
	Meta pagemeta.Meta `json:"meta,omitempty"`
}

// CurrencyContext carries the currency sources in precedence order.
type CurrencyContext struct {
	Campaign      string `json:"campaign,omitempty"`
	Selected      string `json:"selected,omitempty"`
	BrowserLocale string `json:"browser_locale,omitempty"`
}

// PreviewRequest asks for the order payload a submission would send.
type PreviewRequest struct {
	ValidateRequest
	Cart          model.CartSnapshot  `json:"cart"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	CardToken     string              `json:"card_token,omitempty"`
	Currency      CurrencyContext     `json:"currency"`
	Page          PageContext         `json:"page"`
}

// StatesResponse is the state list plus the derived province-field policy.
type StatesResponse struct {
	States        []model.State       `json:"states"`
	CountryConfig model.CountryConfig `json:"country_config"`
	StateField    StateField          `json:"state_field"`
}

// StateField says how the province field should render.
type StateField struct {
	Visible  bool   `json:"visible"`
	Required bool   `json:"required"`
	Label    string `json:"label"`
}

// ClientConfig is the orchestrator configuration handed to the browser.
type ClientConfig struct {
	DefaultCountry       string `json:"default_country"`
	DefaultPaymentMethod string `json:"default_payment_method"`
	ValidateExpress      bool   `json:"validate_express"`
	PhoneRequired        bool   `json:"phone_required"`
	ProspectTrigger      string `json:"prospect_trigger"`
	ProspectAutoCreate   bool   `json:"prospect_auto_create"`
	ProspectTTLSeconds   int64  `json:"prospect_ttl_seconds"`
}

// WarningState reports whether a duplicate-order warning was shown.
type WarningState struct {
	RefID string `json:"ref_id"`
	Shown bool   `json:"shown"`
}
