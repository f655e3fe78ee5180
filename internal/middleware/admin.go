package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AdminPINKey is the settings key holding the bcrypt hash of the admin PIN.
const AdminPINKey = "admin_pin_hash"

const AdminPINHeader = "X-Admin-PIN"

var ErrInvalidPIN = errors.New("PIN must be 4 to 8 digits")

// PINSettings reads and writes the stored PIN hash.
type PINSettings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SetAdminPIN validates pin, hashes it with bcrypt and stores the hash.
func SetAdminPIN(ctx context.Context, settings PINSettings, pin string) error {
	if len(pin) < 4 || len(pin) > 8 || !isDigits(pin) {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	if err := settings.Set(ctx, AdminPINKey, string(hash)); err != nil {
		return fmt.Errorf("store PIN: %w", err)
	}
	return nil
}

// RequireAdminPIN rejects requests whose X-Admin-PIN header does not match
// the stored hash. With no PIN configured the admin routes are closed.
func RequireAdminPIN(settings PINSettings, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hash, ok, err := settings.Get(r.Context(), AdminPINKey)
			if err != nil {
				logger.Error("read admin PIN", "error", err, "request_id", RequestID(r.Context()))
				writeError(w, http.StatusInternalServerError, "failed to verify PIN")
				return
			}
			if !ok || hash == "" {
				writeError(w, http.StatusForbidden, "admin PIN not configured")
				return
			}

			pin := r.Header.Get(AdminPINHeader)
			if pin == "" {
				writeError(w, http.StatusUnauthorized, "admin PIN required")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
				logger.Warn("admin PIN rejected", "remote", RealIP(r))
				writeError(w, http.StatusUnauthorized, "incorrect PIN")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
