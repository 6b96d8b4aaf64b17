// Package commerce is the HTTP client of the storefront commerce API:
// order creation, prospect carts and the address catalogue.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the commerce API. It implements address.Source.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	tracer trace.Tracer
	logger *log.Logger
}

// New returns a client for cfg.BaseURL.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("commerce base url %q is invalid", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   hc,
		tracer: otel.Tracer("github.com/iliamunaev/checkout-engine/internal/commerce"),
		logger: logger,
	}, nil
}

// CreateOrder validates p against the order schema and submits it.
func (c *Client) CreateOrder(ctx context.Context, p model.OrderPayload) (model.Order, error) {
	ctx, span := c.tracer.Start(ctx, "commerce.CreateOrder",
		trace.WithAttributes(attribute.String("payment_method", p.PaymentDetail.PaymentMethod)))
	defer span.End()

	body, err := ValidatePayload(p)
	if err != nil {
		span.SetStatus(codes.Error, "invalid payload")
		return model.Order{}, err
	}

	var o model.Order
	if err := c.do(ctx, http.MethodPost, "api/v1/orders/", body, &o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Kind(err))
		return model.Order{}, err
	}
	span.SetAttributes(attribute.String("ref_id", o.RefID))
	return o, nil
}

// CreateCart creates a prospect cart and returns its id.
func (c *Client) CreateCart(ctx context.Context, req model.ProspectCartRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode cart request: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "api/v1/carts/", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create cart: response without id")
	}
	return out.ID, nil
}

// Countries lists the countries the store ships to.
func (c *Client) Countries(ctx context.Context) ([]model.Country, error) {
	var out struct {
		Countries []model.Country `json:"countries"`
	}
	if err := c.do(ctx, http.MethodGet, "api/v1/address/countries/", nil, &out); err != nil {
		return nil, err
	}
	return out.Countries, nil
}

// States returns the state list and address rules of one country.
func (c *Client) States(ctx context.Context, countryCode string) (model.StatesResult, error) {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	var out model.StatesResult
	if err := c.do(ctx, http.MethodGet, "api/v1/address/countries/"+url.PathEscape(code)+"/states/", nil, &out); err != nil {
		return model.StatesResult{}, err
	}
	if out.CountryConfig.Code == "" {
		out.CountryConfig.Code = code
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dst any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("build %s url: %w", path, err)
	}
	target := c.base.ResolveReference(ref).String()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", apperr.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Printf("commerce_call method=%s path=%s status=%d duration=%s", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &apiErr.ResponseData); err != nil {
				apiErr.ResponseData.Message = strings.TrimSpace(string(raw))
			}
		}
		return apiErr
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s response: empty body", path)
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
