// Package auth guards the admin routes with a static bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing Authorization header")
	ErrMalformedAuth = errors.New("invalid Authorization header format")
)

// ExtractBearerToken returns the token from "Authorization: Bearer <token>".
func ExtractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", ErrMalformedAuth
	}

	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate reports whether presented matches the configured token.
// An empty configured token never matches.
func Authenticate(presented, configured string) bool {
	return constantTimeEqual(presented, configured)
}

// RequireToken rejects requests that do not carry token with 401.
func RequireToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, err := ExtractBearerToken(r)
			if err != nil || !Authenticate(presented, token) {
				reason := "invalid token"
				if err != nil {
					reason = err.Error()
				}
				logger.Warn("admin request unauthorized",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"reason", reason,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="hookserver"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
