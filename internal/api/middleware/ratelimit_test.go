package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orionwholesale/storefront/internal/api/middleware"
	"github.com/orionwholesale/storefront/internal/api/models"
)

func limited(limit int) http.Handler {
	cfg := middleware.RateLimitConfig{RequestLimit: limit, WindowLength: time.Minute}
	return middleware.RequestID(middleware.RateLimitByIP(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
}

func hit(handler http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/landing/refresh", http.NoBody)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	handler := limited(5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:12345").Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := limited(2)
	hit(handler, "10.0.0.1:1")
	hit(handler, "10.0.0.1:1")

	rec := hit(handler, "10.0.0.1:1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, models.ProblemContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too-many-requests")
	assert.Contains(t, rec.Body.String(), "/v1/landing/refresh")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRateLimitByIP_SeparateClients(t *testing.T) {
	handler := limited(1)

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.2:1").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.3:1").Code)
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 6, middleware.RefreshRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.RefreshRateLimit.WindowLength)
	assert.Equal(t, 120, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
