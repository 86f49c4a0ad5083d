package httpserver

import (
	"context"
	"net/http"
	"sort"
	"time"

	"rxvc/pkg/platform/httputil"
)

// Check probes one backing service.
type Check func(ctx context.Context) error

// Readiness reports 200 when every check passes and 503 otherwise. The body
// lists each check as "ok" or "unavailable"; error details stay in logs.
func Readiness(checks map[string]Check, timeout time.Duration) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				body[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
