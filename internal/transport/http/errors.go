package httptransport

import (
	"errors"
	"net/http"

	"github.com/iliamunaev/checkout-engine/internal/apperr"
	"github.com/iliamunaev/checkout-engine/internal/commerce"
)

// writeError answers with the status and payload for err's kind. Upstream
// field errors and schema problems are carried through.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	kind := apperr.Kind(err)
	payload := &ErrorPayload{Kind: kind, Message: msg}

	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) {
		payload.Fields = apiErr.FieldErrors()
	}
	var schemaErr *commerce.SchemaError
	if errors.As(err, &schemaErr) {
		payload.Problems = schemaErr.Problems
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Printf("http_error kind=%s status=%d err=%v", kind, status, err)
	}
	writeJSON(w, status, Response{Status: "error", Error: payload})
}
