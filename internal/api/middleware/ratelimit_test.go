package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, rl *RateLimiter, path string) *httptest.ResponseRecorder {
	t.Helper()
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.7:4411"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(t, rl, "/api/v1/papers").Code)
	}
	rec := serve(t, rl, "/api/v1/papers")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterGeneratorRoutesCostMore(t *testing.T) {
	rl := NewRateLimiter(0.001, 15)

	// One generator run costs ten tokens; a second within the burst window
	// must be rejected while cheap reads still pass.
	require.Equal(t, http.StatusOK, serve(t, rl, "/api/v1/generate/research-gaps").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, rl, "/api/v1/generate/innovations").Code)
	assert.Equal(t, http.StatusOK, serve(t, rl, "/api/v1/sessions").Code)
}

func TestRequestCost(t *testing.T) {
	assert.Equal(t, float64(costGenerate), requestCost("/api/v1/generate/experiment-design"))
	assert.Equal(t, float64(costAnalyze), requestCost("/api/v1/papers/123/analyze"))
	assert.Equal(t, float64(costDefault), requestCost("/api/v1/papers"))
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/api/v1/papers", nil)
	first.RemoteAddr = "203.0.113.1:1000"
	second := httptest.NewRequest(http.MethodGet, "/api/v1/papers", nil)
	second.RemoteAddr = "203.0.113.2:1000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code, "an exhausted client must not throttle others")
}
