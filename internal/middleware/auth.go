package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/reunion/internal/auth"
)

// AdminPasswordHeader carries the shared admin password on protected requests.
const AdminPasswordHeader = "X-Admin-Password"

// RequireAdminPassword rejects requests whose admin header does not match the
// configured secret. With no secret configured every request passes unless
// the secret was built fail-closed.
func RequireAdminPassword(secret *auth.AdminSecret) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secret.Check(r.Header.Get(AdminPasswordHeader)) {
				writeFailure(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context())))
		})
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
