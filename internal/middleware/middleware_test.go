package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func doRequest(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_PerKeyIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil, logging.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusNoContent, doRequest(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(h, "10.0.0.1:1001").Code)

	rec := doRequest(h, "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, doRequest(h, "10.0.0.2:1000").Code)
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, logging.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusNoContent, doRequest(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:1").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, doRequest(h, "10.0.0.1:1").Code)
}

func TestRateLimiter_KeyFunc(t *testing.T) {
	rl := NewRateLimiter(1, 1, func(r *http.Request) string {
		return r.Header.Get("X-Account")
	}, logging.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler)

	send := func(account string) int {
		req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Account", account)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("alice"))
	assert.Equal(t, http.StatusNoContent, send("bob"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, logging.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler)

	doRequest(h, "10.0.0.1:1")
	now = now.Add(time.Minute)
	doRequest(h, "10.0.0.2:1")
	require.Equal(t, 2, rl.size())

	rl.Cleanup(30 * time.Second)
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_StartCleanupUsesIdleCutoff(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, logging.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := rl.Handler(okHandler)

	doRequest(h, "10.0.0.1:1")
	mu.Lock()
	now = now.Add(5 * time.Minute)
	mu.Unlock()
	doRequest(h, "10.0.0.2:1")

	mu.Lock()
	now = now.Add(6 * time.Minute)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl.StartCleanup(ctx, 5*time.Millisecond, 10*time.Minute)

	// 11 minutes idle is dropped, 6 minutes idle survives many ticks.
	require.Eventually(t, func() bool { return rl.size() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rl.size())
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewZapLogger(zap.New(core))

	var seenID string
	h := chimw.RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestID(r.Context())
		w.WriteHeader(http.StatusBadRequest)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/signup", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, seenID)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/users/signup", fields["path"])
	assert.EqualValues(t, http.StatusBadRequest, fields["status"])
	assert.Equal(t, seenID, fields["request_id"])
}
