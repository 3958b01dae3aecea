package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/pkg/requestcontext"
)

func TestInMemoryStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		res, err := s.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter(now))

	other, err := s.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	now = now.Add(30 * time.Second)
	res, err = s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "the oldest request left the window")
}

func TestInMemoryStore_Sweep(t *testing.T) {
	now := time.Now()
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }
	_, _ = s.Allow(context.Background(), "k", 1, time.Second)

	now = now.Add(2 * time.Second)
	s.Sweep(time.Second)
	assert.Empty(t, s.windows)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/enrich", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("over limit is rejected per client", func(t *testing.T) {
		h := NewLimiter(NewInMemoryStore(), 2, time.Minute, logger).Middleware(ok)

		assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1").Code)
		rr := serve(h, "1.1.1.1")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

		rr = serve(h, "1.1.1.1")
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"rate_limited","error_description":"too many requests, slow down"}`, rr.Body.String())

		assert.Equal(t, http.StatusOK, serve(h, "2.2.2.2").Code)
	})

	t.Run("store failure lets traffic through", func(t *testing.T) {
		h := NewLimiter(failingStore{}, 1, time.Minute, logger).Middleware(ok)
		assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1").Code)
		assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1").Code)
	})
}

func TestInMemoryStore_Sweeper(t *testing.T) {
	s := NewInMemoryStore()
	_, _ = s.Allow(context.Background(), "k", 1, time.Millisecond)
	stop := s.StartSweeper(time.Millisecond, 5*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.windows) == 0
	}, time.Second, 5*time.Millisecond)
	stop()
}
