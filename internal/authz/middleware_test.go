package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireBearerTokenRejectsMissingToken(t *testing.T) {
	auth := NewAuthService()
	handler := RequireBearerToken(auth)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerTokenRejectsInvalidToken(t *testing.T) {
	auth := NewAuthService()
	handler := RequireBearerToken(auth)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerTokenAllowsValidToken(t *testing.T) {
	auth := NewAuthService()
	handler := RequireBearerToken(auth)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+devToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRateLimitRejectsOverLimit(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1})
	handler := RequireRateLimit(limiter, ClientIDFromToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer client-a")

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestClientIDFromTokenFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", ClientIDFromToken(req))

	req.Header.Set("Authorization", "Bearer client-token")
	assert.Equal(t, "client-token", ClientIDFromToken(req))
}

func TestClientIDContextRoundTrip(t *testing.T) {
	ctx := WithClientID(t.Context(), "client-a")
	v, ok := ClientIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "client-a", v)
}
