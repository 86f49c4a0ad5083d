// Package requesttime pins one "now" per HTTP request so the credentials,
// fraud evaluation and audit entries written for that request agree.
package requesttime

import (
	"net/http"
	"time"

	"rxvc/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock in UTC.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps each request with now().UTC().
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
