// Package apperr classifies checkout failures into stable kinds.
//
// Every recoverable failure the engine can surface maps to exactly one kind.
// Components return sentinel or typed errors; the orchestrator and the HTTP
// transport classify them here instead of matching on messages.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kinds reported by Kind.
const (
	KindInputInvalid        = "input_invalid"
	KindNotReady            = "not_ready"
	KindIncompleteInput     = "incomplete_input"
	KindVendorRejected      = "vendor_rejected"
	KindTokenizationTimeout = "tokenization_timeout"
	KindAPIValidation       = "api_validation"
	KindPaymentProcessor    = "payment_processor"
	KindRateLimited         = "rate_limited"
	KindUnauthorized        = "unauthorized"
	KindServerError         = "server_error"
	KindTransport           = "transport"
	KindTimeout             = "timeout"
	KindCanceled            = "canceled"
	KindInternal            = "internal"
)

var (
	ErrInputInvalid        = errors.New("form input invalid")
	ErrNotReady            = errors.New("payment widget not ready")
	ErrIncompleteInput     = errors.New("card holder name or expiration missing")
	ErrTokenizationTimeout = errors.New("tokenization timed out")
	ErrTransport           = errors.New("commerce api unreachable")
)

// kinder is satisfied by typed errors that carry their own classification.
type kinder interface {
	Kind() string
}

// Kind returns the classification of err.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}

	switch {
	case errors.Is(err, ErrInputInvalid):
		return KindInputInvalid

	case errors.Is(err, ErrNotReady):
		return KindNotReady

	case errors.Is(err, ErrIncompleteInput):
		return KindIncompleteInput

	case errors.Is(err, ErrTokenizationTimeout):
		return KindTokenizationTimeout

	case errors.Is(err, ErrTransport):
		return KindTransport

	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout

	case errors.Is(err, context.Canceled):
		return KindCanceled

	default:
		return KindInternal
	}
}

var kindToStatus = map[string]int{
	KindInputInvalid:        http.StatusUnprocessableEntity,
	KindNotReady:            http.StatusConflict,
	KindIncompleteInput:     http.StatusUnprocessableEntity,
	KindVendorRejected:      http.StatusUnprocessableEntity,
	KindTokenizationTimeout: http.StatusGatewayTimeout,
	KindAPIValidation:       http.StatusBadRequest,
	KindPaymentProcessor:    http.StatusPaymentRequired,
	KindRateLimited:         http.StatusTooManyRequests,
	KindUnauthorized:        http.StatusUnauthorized,
	KindServerError:         http.StatusBadGateway,
	KindTransport:           http.StatusBadGateway,
	KindTimeout:             http.StatusGatewayTimeout,
	KindCanceled:            http.StatusRequestTimeout,
}

// HTTPStatus maps err to the status the transport layer answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
