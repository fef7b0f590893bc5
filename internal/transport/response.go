// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the panelsmith API.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/model"
)

// maxRequestBody caps decoded request bodies. The largest legitimate payload
// is a base64 asset upload, which the asset store re-checks against its own
// configured limit.
const maxRequestBody = 32 << 20

// statusForCode maps ErrorEnvelope codes to HTTP status codes. Marker
// violations and stale-hash rejections are conflicts: the file on disk, not
// the request, is what blocks the operation.
var statusForCode = map[string]int{
	model.ErrBadRequest:          http.StatusBadRequest,
	model.ErrUnauthorized:        http.StatusUnauthorized,
	model.ErrForbidden:           http.StatusForbidden,
	model.ErrNotFound:            http.StatusNotFound,
	model.ErrConflict:            http.StatusConflict,
	model.ErrValidationError:     http.StatusUnprocessableEntity,
	model.ErrInternalError:       http.StatusInternalServerError,
	model.ErrMarkerCountMismatch: http.StatusConflict,
	model.ErrMarkerOrderInvalid:  http.StatusConflict,
	model.ErrMarkersMissing:      http.StatusInternalServerError,
	model.ErrExternallyModified:  http.StatusConflict,
	model.ErrRecipeReadOnly:      http.StatusForbidden,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the mapped HTTP
// status code, stamping the active trace id when the envelope carries none.
// A non-envelope error becomes a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if ee.TraceID == "" && r != nil {
		if tid := observability.TraceIDFromContext(r.Context()); tid != "" {
			stamped := *ee
			stamped.TraceID = tid
			ee = &stamped
		}
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, r *http.Request, details []model.FieldError) {
	WriteError(w, r, model.NewValidationError(details))
}

// DecodeJSON decodes a JSON request body into dst. An empty body leaves dst
// zeroed, so endpoints with optional bodies decode unconditionally and check
// fields afterwards.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewBadRequestError("request body is not valid JSON: " + err.Error())
}
