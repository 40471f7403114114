package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/linkmend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps a domain error to an HTTP status. Zero means the error is
// not a known sentinel.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidPath), errors.Is(err, apperr.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrAmbiguous):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotApplied):
		return http.StatusUnprocessableEntity
	}
	return 0
}

// writeServiceError writes a known domain error with its status. Anything
// else is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, op string, err error, attrs ...any) {
	if status := statusFor(err); status != 0 {
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
