// Package config loads the checkout service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/iliamunaev/checkout-engine/internal/checkout"
	"github.com/iliamunaev/checkout-engine/internal/model"
)

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Server is the configuration of the checkout-rules HTTP service.
type Server struct {
	Addr           string        `env:"CHECKOUT_ADDR"            envDefault:":8080"`
	RequestTimeout time.Duration `env:"CHECKOUT_REQUEST_TIMEOUT" envDefault:"2s"`

	CommerceBaseURL string        `env:"CHECKOUT_COMMERCE_BASE_URL" envDefault:"http://localhost:8000"`
	CommerceAPIKey  string        `env:"CHECKOUT_COMMERCE_API_KEY"`
	CommerceTimeout time.Duration `env:"CHECKOUT_COMMERCE_TIMEOUT"  envDefault:"10s"`

	SessionDBPath string `env:"CHECKOUT_SESSION_DB" envDefault:"checkout-sessions.db"`

	StatesClearAfter time.Duration `env:"CHECKOUT_STATES_CLEAR_AFTER" envDefault:"1s"`

	DefaultCountry  string `env:"CHECKOUT_DEFAULT_COUNTRY"  envDefault:"US"`
	ValidateExpress bool   `env:"CHECKOUT_VALIDATE_EXPRESS" envDefault:"false"`
	PhoneRequired   bool   `env:"CHECKOUT_PHONE_REQUIRED"   envDefault:"false"`

	ProspectTrigger    string        `env:"CHECKOUT_PROSPECT_TRIGGER"     envDefault:"emailEntry"`
	ProspectAutoCreate bool          `env:"CHECKOUT_PROSPECT_AUTO_CREATE" envDefault:"false"`
	ProspectTTL        time.Duration `env:"CHECKOUT_PROSPECT_TTL"         envDefault:"24h"`

	ServiceName  string `env:"CHECKOUT_SERVICE_NAME"  envDefault:"checkout-engine"`
	OTelEndpoint string `env:"CHECKOUT_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"CHECKOUT_OTEL_ENABLED"  envDefault:"true"`
}

// Load parses the Server configuration from the environment and validates it.
func Load() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c Server) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("CHECKOUT_ADDR is required"))
	}
	if u, err := url.Parse(c.CommerceBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("CHECKOUT_COMMERCE_BASE_URL %q is not an absolute URL", c.CommerceBaseURL))
	}
	if len(strings.TrimSpace(c.DefaultCountry)) != 2 {
		errs = append(errs, fmt.Errorf("CHECKOUT_DEFAULT_COUNTRY %q is not a two-letter code", c.DefaultCountry))
	}
	switch checkout.TriggerOn(c.ProspectTrigger) {
	case checkout.TriggerFormStart, checkout.TriggerEmailEntry, checkout.TriggerManual:
	default:
		errs = append(errs, fmt.Errorf("CHECKOUT_PROSPECT_TRIGGER %q is unknown", c.ProspectTrigger))
	}
	return errors.Join(errs...)
}

// Checkout returns the orchestrator configuration derived from c.
func (c Server) Checkout() checkout.Config {
	return checkout.Config{
		DefaultCountry:       strings.ToUpper(strings.TrimSpace(c.DefaultCountry)),
		DefaultPaymentMethod: model.PaymentCreditCard,
		ValidateExpress:      c.ValidateExpress,
		PhoneRequired:        c.PhoneRequired,
		Prospect: checkout.ProspectConfig{
			TriggerOn:  checkout.TriggerOn(c.ProspectTrigger),
			AutoCreate: c.ProspectAutoCreate,
			TTL:        c.ProspectTTL,
		},
	}
}
