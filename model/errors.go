package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Compile/merge-specific error codes.
const (
	ErrMarkerCountMismatch = "MARKER_COUNT_MISMATCH"
	ErrMarkerOrderInvalid  = "MARKER_ORDER_INVALID"
	ErrMarkersMissing      = "MARKERS_MISSING"
	ErrExternallyModified  = "EXTERNALLY_MODIFIED"
	ErrRecipeReadOnly      = "RECIPE_READ_ONLY"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewMarkerCountError reports a merge target whose begin/end marker counts are
// not exactly one each.
func NewMarkerCountError(begin, end int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMarkerCountMismatch,
		Message: fmt.Sprintf("marker count mismatch: begin=%d end=%d", begin, end),
	}
}

// NewMarkerOrderError reports a merge target where the end marker appears
// before the begin marker.
func NewMarkerOrderError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMarkerOrderInvalid,
		Message: "end marker appears before begin marker",
	}
}

// NewMarkersMissingError reports a generated block that lacks its own
// begin/end markers.
func NewMarkersMissingError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMarkersMissing,
		Message: "generated block is missing its begin/end markers",
	}
}

// NewExternallyModifiedError reports an optimistic write rejected because the
// target file changed since it was last read.
func NewExternallyModifiedError(path string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrExternallyModified,
		Message: fmt.Sprintf("file changed since it was last read: %s", path),
	}
}

// NewRecipeReadOnlyError reports an attempt to mutate a builtin recipe.
func NewRecipeReadOnlyError(recipeID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrRecipeReadOnly,
		Message: fmt.Sprintf("builtin recipe %q is read-only", recipeID),
	}
}
