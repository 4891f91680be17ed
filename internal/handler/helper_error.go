package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/controller"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

func WriteError(w http.ResponseWriter, status int, reason string) {
	statusText := strings.ToLower(http.StatusText(status))
	statusText = strings.ReplaceAll(statusText, " ", "_")
	statusText = strings.ReplaceAll(statusText, "'", "")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{ // nolint: errcheck
		Error:  statusText,
		Reason: reason,
	})
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// StatusOf maps the errors of the engine to http status codes.
func StatusOf(err error) int {
	var (
		invalid   *model.InvalidDefinitionError
		selector  *model.KeySelectorError
		selfLoop  *model.SelfLoopError
		duplicate *model.DuplicateOutputError
		cycle     *model.CycleError
	)
	switch {
	case errors.Is(err, port.ErrNotFound), errors.Is(err, model.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDatabaseExists):
		return http.StatusPreconditionFailed
	case errors.Is(err, storage.ErrInvalidDocument),
		errors.As(err, &invalid), errors.As(err, &selector):
		return http.StatusBadRequest
	case errors.As(err, &selfLoop), errors.As(err, &duplicate), errors.As(err, &cycle):
		return http.StatusConflict
	case errors.Is(err, controller.ErrEngineNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorOf writes err with the status of StatusOf, server errors
// are logged.
func (b Base) WriteErrorOf(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		b.Logger.ErrorCtx(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteError(w, status, err.Error())
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) // nolint: errcheck
}
