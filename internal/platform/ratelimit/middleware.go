package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/httputil"
	"rxvc/pkg/platform/middleware/metadata"
	"rxvc/pkg/requestcontext"
)

// Middleware limits requests per actor DID, or per client IP when the
// request names no actor.
type Middleware struct {
	store     Store
	limit     int
	window    time.Duration
	actorFrom func(*http.Request) string
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Middleware)

// WithActorHeader keys buckets by the value of header when present.
func WithActorHeader(header string) Option {
	return func(m *Middleware) {
		m.actorFrom = func(r *http.Request) string { return r.Header.Get(header) }
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds the middleware. A limit of zero or less disables it.
func New(store Store, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:     store,
		limit:     limit,
		window:    window,
		actorFrom: func(r *http.Request) string { return requestcontext.ActorDID(r.Context()).String() },
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if limit <= 0 {
		logger.Info("rate limiting disabled")
	}
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := Key("ip", metadata.ClientIPFromRequest(r))
		if actor := m.actorFrom(r); actor != "" {
			key = Key("actor", actor)
		}

		res, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			// Fail open.
			m.logger.ErrorContext(ctx, "rate limit check failed", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter(m.now())))
			m.logger.WarnContext(ctx, "rate limit exceeded", "key", key)
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
