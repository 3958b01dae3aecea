package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/platform/httputil"
	"zahori/pkg/requestcontext"
)

// Limiter admits at most Limit requests per client IP per Window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, logger: logger}
}

// Middleware rejects over-limit clients with 429. When the store fails the
// request is let through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)

		res, err := l.store.Allow(ctx, "ip:"+ip, l.limit, l.window)
		if err != nil {
			l.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			wait := res.RetryAfter(time.Now())
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			l.logger.WarnContext(ctx, "client rate limited",
				"client_ip", ip,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, slow down"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
