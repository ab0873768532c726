package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/config"
	"openprotect-lab/pkg/logger"
)

type observation struct {
	route  string
	method string
	code   int
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveHTTP(route, method string, code int, _ time.Duration) {
	o.seen = append(o.seen, observation{route: route, method: method, code: code})
}

func TestLogger_RecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})
	obs := &recordingObserver{}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logger(log, obs))
	r.Get("/cases/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/CASE-1", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "/cases/CASE-1", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.NotEmpty(t, entry["request_id"])

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observation{route: "/cases/{id}", method: http.MethodGet, code: http.StatusNotFound}, obs.seen[0])
	// A handler that never calls WriteHeader is recorded as 200
	assert.Equal(t, http.StatusOK, obs.seen[1].code)
}

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	if f.err != nil {
		return false, 0, time.Time{}, f.err
	}
	f.counts[key]++
	remaining := limit - f.counts[key]
	if remaining < 0 {
		remaining = 0
	}
	return f.counts[key] <= limit, remaining, time.Now().Add(window), nil
}

func TestRateLimiter(t *testing.T) {
	store := &fakeLimiter{counts: map[string]int64{}}
	h := RateLimiter(store, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}, logger.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := func(method, addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(method, "/api/v1/dashboard", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	first := req(http.MethodGet, "10.0.0.1:5000")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	// Same host, different port shares the bucket
	second := req(http.MethodGet, "10.0.0.1:6000")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, second.Body.String())

	assert.Equal(t, http.StatusOK, req(http.MethodGet, "10.0.0.2:5000").Code)
	assert.Equal(t, http.StatusOK, req(http.MethodOptions, "10.0.0.1:5000").Code)
	assert.Equal(t, int64(2), store.counts["ip:10.0.0.1"])
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	store := &fakeLimiter{err: errors.New("redis down")}
	h := RateLimiter(store, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}, logger.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
