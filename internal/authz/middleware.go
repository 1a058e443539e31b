package authz

import (
	"context"
	"net/http"
	"strings"
)

// RequireBearerToken returns middleware that rejects requests lacking a
// valid "Authorization: Bearer <token>" header.
func RequireBearerToken(auth *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || !auth.ValidateToken(token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="agentmesh"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRateLimit returns middleware that rejects requests once
// clientIDFn's result has exhausted its token bucket.
func RequireRateLimit(limiter RateLimiter, clientIDFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Allow(r.Context(), clientIDFn(r)); err != nil {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIDFromToken keys the rate limiter off the caller's bearer token,
// falling back to the remote address for unauthenticated probes.
func ClientIDFromToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	return r.RemoteAddr
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

type contextKey int

const clientIDKey contextKey = iota

// WithClientID attaches clientID to ctx for downstream handlers.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext retrieves a client ID attached by WithClientID.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIDKey).(string)
	return v, ok
}
