// Package httptransport serves the checkout rules over HTTP: country and
// state lookups, whole-form validation, order-payload previews and the
// per-session records the duplicate-order guard reads.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/checkout"
	"github.com/iliamunaev/checkout-engine/internal/commerce"
	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/order"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
	"github.com/iliamunaev/checkout-engine/internal/session"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

type countryResolver interface {
	GetCountries(ctx context.Context) ([]model.Country, error)
	GetStatesFor(ctx context.Context, countryCode string) (model.StatesResult, error)
	Configs() map[string]model.CountryConfig
}

// SessionFunc opens the store of one browser session.
type SessionFunc func(id string) session.Store

// Deps are the collaborators of a Handler.
type Deps struct {
	Resolver countryResolver
	Engine   *validation.Engine
	Sessions SessionFunc
	Checkout checkout.Config
	Logger   *log.Logger
}

// Handler handles the checkout HTTP API.
type Handler struct {
	resolver       countryResolver
	engine         *validation.Engine
	sessions       SessionFunc
	checkout       checkout.Config
	logger         *log.Logger
	requestTimeout time.Duration
}

// New returns a Handler configured with deps and the given request timeout.
//
// It panics if a collaborator is nil. If requestTimeout is non-positive,
// a default timeout is applied.
func New(deps Deps, requestTimeout time.Duration) *Handler {
	if deps.Resolver == nil {
		panic("httptransport.New: nil resolver")
	}
	if deps.Engine == nil {
		panic("httptransport.New: nil validation engine")
	}
	if deps.Sessions == nil {
		panic("httptransport.New: nil session opener")
	}
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Handler{
		resolver:       deps.Resolver,
		engine:         deps.Engine,
		sessions:       deps.Sessions,
		checkout:       deps.Checkout,
		logger:         deps.Logger,
		requestTimeout: requestTimeout,
	}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.HandleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/config", h.HandleConfig)
		r.Get("/countries", h.HandleCountries)
		r.Get("/countries/{code}/states", h.HandleStates)
		r.Post("/checkout/validate", h.HandleValidate)
		r.Post("/checkout/preview", h.HandlePreview)
		r.Get("/sessions/{session}/last-order", h.HandleLastOrder)
		r.Put("/sessions/{session}/last-order", h.HandleSaveLastOrder)
		r.Get("/sessions/{session}/warnings/{ref}", h.HandleWarning)
		r.Put("/sessions/{session}/warnings/{ref}", h.HandleMarkWarning)
	})
	return r
}

// HandleHealth answers liveness probes.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleConfig returns the orchestrator configuration for the browser.
func (h *Handler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	c := h.checkout
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: ClientConfig{
		DefaultCountry:       c.DefaultCountry,
		DefaultPaymentMethod: string(c.DefaultPaymentMethod),
		ValidateExpress:      c.ValidateExpress,
		PhoneRequired:        c.PhoneRequired,
		ProspectTrigger:      string(c.Prospect.TriggerOn),
		ProspectAutoCreate:   c.Prospect.AutoCreate,
		ProspectTTLSeconds:   int64(c.Prospect.TTL / time.Second),
	}})
}

// HandleCountries lists the selectable countries.
func (h *Handler) HandleCountries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	countries, err := h.resolver.GetCountries(ctx)
	if err != nil {
		h.writeError(w, err, "country list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: countries})
}

// HandleStates returns a country's states and province-field policy.
func (h *Handler) HandleStates(w http.ResponseWriter, r *http.Request) {
	code := address.NormalizeCode(chi.URLParam(r, "code"))
	if len(code) != 2 {
		writeBadRequest(w, "country code must have two letters")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	res, err := h.resolver.GetStatesFor(ctx, code)
	if err != nil {
		h.writeError(w, err, "state list unavailable")
		return
	}
	p := address.PolicyFor(res)
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: StatesResponse{
		States:        res.States,
		CountryConfig: res.CountryConfig,
		StateField:    StateField{Visible: p.Visible, Required: p.Required, Label: p.Label},
	}})
}

// HandleValidate runs a whole-form validation pass. An invalid form is
// answered with 422 and the per-field messages.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	v, err := h.validate(ctx, req)
	if err != nil {
		h.writeError(w, err, "address rules unavailable")
		return
	}
	if !v.IsValid {
		writeInvalid(w, v)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Validation: &v})
}

// HandlePreview validates the form and returns the order payload a
// submission would send, checked against the order schema.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = h.checkout.DefaultPaymentMethod
	}
	current, err := url.Parse(req.Page.URL)
	if err != nil || current.Scheme == "" || current.Host == "" {
		writeBadRequest(w, "page.url must be an absolute URL")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	req.IncludePayment = !req.PaymentMethod.IsExpress()
	v, err := h.validate(ctx, req.ValidateRequest)
	if err != nil {
		h.writeError(w, err, "address rules unavailable")
		return
	}
	if !v.IsValid {
		writeInvalid(w, v)
		return
	}

	billing := model.BillingFromForm(req.Form)
	payload := order.Build(req.Form, req.Cart, &billing, req.sameAsShipping(), order.Options{
		PaymentMethod: req.PaymentMethod,
		CardToken:     req.CardToken,
		Currency: order.CurrencySources{
			Campaign:      req.Currency.Campaign,
			Selected:      req.Currency.Selected,
			BrowserLocale: req.Currency.BrowserLocale,
		},
		URLs: pagemeta.Resolve(req.Page.Meta, current),
	})
	if _, err := commerce.ValidatePayload(payload); err != nil {
		h.writeError(w, err, "order payload invalid")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: payload, Validation: &v})
}

// validate resolves the shipping and billing country rules and runs the
// engine over the submitted form.
func (h *Handler) validate(ctx context.Context, req ValidateRequest) (model.ValidationResult, error) {
	same := req.sameAsShipping()
	in := validation.FormInput{
		Form:           req.Form,
		IncludePayment: req.IncludePayment,
		SameAsShipping: same,
		PhoneRequired:  h.checkout.PhoneRequired,
	}

	if code := address.NormalizeCode(req.Form.Get(model.FieldCountry)); code != "" {
		res, err := h.resolver.GetStatesFor(ctx, code)
		if err != nil {
			return model.ValidationResult{}, err
		}
		cfg := res.CountryConfig
		in.Country = &cfg
	}
	if !same {
		b := model.BillingFromForm(req.Form)
		b.Country = address.NormalizeCode(b.Country)
		if b.Country != "" {
			if _, err := h.resolver.GetStatesFor(ctx, b.Country); err != nil {
				return model.ValidationResult{}, err
			}
		}
		in.Billing = &b
	}
	in.Countries = h.resolver.Configs()

	if req.IncludePayment {
		var card CardState
		if req.Card != nil {
			card = *req.Card
		}
		in.Card = card
	}
	return h.engine.ValidateForm(in), nil
}

// HandleLastOrder returns the session's last completed order.
func (h *Handler) HandleLastOrder(w http.ResponseWriter, r *http.Request) {
	store, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	o, found, err := store.LastOrder(ctx)
	if err != nil {
		h.writeError(w, err, "session unavailable")
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, Response{
			Status: "error",
			Error:  &ErrorPayload{Kind: "not_found", Message: "no completed order"},
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: o})
}

// HandleSaveLastOrder records the session's last completed order.
func (h *Handler) HandleSaveLastOrder(w http.ResponseWriter, r *http.Request) {
	store, ok := h.session(w, r)
	if !ok {
		return
	}
	var o model.CompletedOrder
	if !decode(w, r, &o) {
		return
	}
	if strings.TrimSpace(o.RefID) == "" {
		writeBadRequest(w, "ref_id is required")
		return
	}
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := store.SaveLastOrder(ctx, o); err != nil {
		h.writeError(w, err, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: o})
}

// HandleWarning reports whether the warning for a reference id was shown.
func (h *Handler) HandleWarning(w http.ResponseWriter, r *http.Request) {
	store, ok := h.session(w, r)
	if !ok {
		return
	}
	ref := chi.URLParam(r, "ref")
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	shown, err := store.WarningShown(ctx, ref)
	if err != nil {
		h.writeError(w, err, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: WarningState{RefID: ref, Shown: shown}})
}

// HandleMarkWarning records that the warning for a reference id was shown.
func (h *Handler) HandleMarkWarning(w http.ResponseWriter, r *http.Request) {
	store, ok := h.session(w, r)
	if !ok {
		return
	}
	ref := chi.URLParam(r, "ref")
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := store.MarkWarningShown(ctx, ref); err != nil {
		h.writeError(w, err, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: WarningState{RefID: ref, Shown: true}})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (session.Store, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "session"))
	if id == "" {
		writeBadRequest(w, "session id is required")
		return nil, false
	}
	return h.sessions(id), true
}

// decode reads a single JSON document into dst. Unknown fields and
// trailing data are rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Status: "error",
		Error:  &ErrorPayload{Kind: "bad_request", Message: msg},
	})
}

func writeInvalid(w http.ResponseWriter, v model.ValidationResult) {
	writeJSON(w, http.StatusUnprocessableEntity, Response{
		Status:     "error",
		Validation: &v,
		Error:      &ErrorPayload{Kind: apperr.KindInputInvalid, Message: "form input invalid", Fields: v.Errors},
	})
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
