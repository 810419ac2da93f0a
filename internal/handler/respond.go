package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/reunion/internal/middleware"
)

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Errors writes failure responses. With Detail set, 500 responses carry the
// underlying error text, which production deployments must not leak.
type Errors struct {
	Detail bool
	logger *slog.Logger
}

func NewErrors(detail bool, logger *slog.Logger) *Errors {
	return &Errors{Detail: detail, logger: logger}
}

// Fail writes a client-facing failure such as a validation or lookup error.
func (e *Errors) Fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureResponse{Message: message})
}

// Internal logs err and answers 500 with a generic message.
func (e *Errors) Internal(w http.ResponseWriter, r *http.Request, message string, err error) {
	e.logger.Error(message, "method", r.Method, "path", r.URL.Path, "request_id", middleware.RequestID(r.Context()), "error", err)
	resp := failureResponse{Message: message}
	if e.Detail && err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
