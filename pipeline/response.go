package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pkg/logger"
	"github.com/mixforge/platform/pkg/requestid"
)

// envelope is the uniform response wrapper: exactly one of Data or Error.
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []core.FieldError `json:"details,omitempty"`
}

// writeData renders a success envelope. A no-content status emits no body.
func writeData(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// writeError is the single place an error becomes a response. Typed
// pipeline errors map to their status and code; anything else is logged and
// collapses to a generic internal error so no internal detail leaks.
func writeError(w http.ResponseWriter, r *http.Request, err error, log *slog.Logger) {
	coreErr := &core.Error{}
	if !errors.As(err, &coreErr) {
		coreErr = core.Internal()
	}

	level := slog.LevelWarn
	if coreErr.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.LogAttrs(r.Context(), level, "request failed",
		logger.RequestID(requestid.FromContext(r.Context())),
		logger.Error(err),
		slog.Int("status", coreErr.Status),
		slog.String("code", coreErr.Code),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.Component("pipeline"),
	)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(coreErr.Status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorBody{
		Code:    coreErr.Code,
		Message: coreErr.Message,
		Details: coreErr.Details,
	}})
}
