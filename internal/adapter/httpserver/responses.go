// Package httpserver contains the HTTP handlers and middleware for both the
// legacy execution surface and the versioned JSON API. It translates requests
// into usecase calls and job records into wire payloads; no business logic
// lives here.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/syla-platform/execution-service/internal/domain"
)

// errorEnvelope is the flat error body: {"error": "<message>"}.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
	}
	if code >= 500 {
		LoggerFrom(r).Error("request failed", "error", err)
	}
	writeJSON(w, code, errorEnvelope{Error: err.Error()})
}
