package core

import (
	"fmt"
	"net/http"
	"strings"
)

// FieldError points at a single offending part of the request, using a
// dotted path such as "body.title" or "query.page".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is the one error shape the request pipeline maps to a response.
// Every stage of the pipeline returns an *Error (possibly wrapped); the
// orchestrator is the only place that turns it into status code and body.
type Error struct {
	Status  int          // HTTP status code
	Code    string       // Stable machine-readable code (e.g. "FORBIDDEN")
	Message string       // Human-readable message, safe to expose
	Details []FieldError // Per-field breakdown for validation failures
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Path, d.Message))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
}

// Unauthorized signals a missing or invalid session, or failed worker
// authentication. Always distinguishable from Forbidden (401 vs 403).
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// Forbidden signals an authenticated caller without sufficient rights.
func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

// Validation signals malformed or invalid input. Details carries every
// violated field, not just the first one.
func Validation(message string, details ...FieldError) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message, Details: details}
}

// InvalidJSON signals a body that could not be parsed at all, before any
// schema validation ran.
func InvalidJSON() *Error {
	return &Error{Status: http.StatusBadRequest, Code: "INVALID_JSON", Message: "request body is not valid JSON"}
}

// NotFound signals a missing domain object. Domain services return it so
// that it passes through the central mapping unchanged.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

// Conflict signals a uniqueness or state conflict in a domain operation.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

// RateLimited signals an exhausted rate-limit window for the policy tier.
func RateLimited() *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: "rate limit exceeded"}
}

// MissingFile signals a required multipart file field that was not sent.
func MissingFile(field string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "MISSING_FILE",
		Message: fmt.Sprintf("file %q is required", field),
		Details: []FieldError{{Path: "files." + field, Message: "file is required"}},
	}
}

// FileTooLarge signals a multipart file exceeding its configured limit.
func FileTooLarge(field string, maxBytes int64) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "FILE_TOO_LARGE",
		Message: fmt.Sprintf("file %q exceeds the %d byte limit", field, maxBytes),
		Details: []FieldError{{Path: "files." + field, Message: fmt.Sprintf("file exceeds %d bytes", maxBytes)}},
	}
}

// InvalidFileType signals a multipart file with a MIME type outside the
// field's allowlist.
func InvalidFileType(field, mimeType string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "INVALID_FILE_TYPE",
		Message: fmt.Sprintf("file %q has unsupported type %q", field, mimeType),
		Details: []FieldError{{Path: "files." + field, Message: fmt.Sprintf("type %q is not allowed", mimeType)}},
	}
}

// Internal is the generic fallback for unmapped errors. It never carries
// internal detail to the caller; the cause stays in the logs.
func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal server error"}
}
