package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// ContextKey type for context keys to avoid collisions.
type ContextKey string

const (
	// ClientIDKey is the context key for the authenticated client id.
	ClientIDKey ContextKey = "client_id"
)

// Middleware provides the HTTP middleware chain for the gateway API.
type Middleware struct {
	jwtAuth *JWTAuth
	logger  *slog.Logger
	noAuth  bool // development mode: bypass authentication
}

// NewMiddleware creates a middleware instance.
func NewMiddleware(jwtAuth *JWTAuth, logger *slog.Logger, noAuth bool) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		jwtAuth: jwtAuth,
		logger:  logger.With("component", "httpapi"),
		noAuth:  noAuth,
	}
}

// Recovery converts handler panics into 500 responses.
func (m *Middleware) Recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// Logging records one line per request.
func (m *Middleware) Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		m.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	}
}

// AuthRequired validates the bearer token (or ?token= query parameter,
// which websocket clients that cannot set headers rely on) and stores the
// client id on the request context.
func (m *Middleware) AuthRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.noAuth {
			next(w, r)
			return
		}

		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, "authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtAuth.ValidateToken(token)
		if err != nil {
			writeError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClientIDKey, claims.ClientID)
		next(w, r.WithContext(ctx))
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
