package middleware

import (
	"log/slog"
	"net/http"

	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/httputil"
	"rxvc/pkg/requestcontext"
)

// HeaderActorDID carries the DID the gateway authenticated for the caller
// (DID-auth or mTLS terminates upstream).
const HeaderActorDID = "X-Actor-DID"

// RequireActor rejects requests without a well-formed actor DID and stores the
// parsed DID in the request context.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := r.Header.Get(HeaderActorDID)
			if raw == "" {
				logger.WarnContext(ctx, "unauthorized access - missing actor",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "actor DID required"))
				return
			}

			did, err := domain.ParseDID(raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed actor",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "actor DID is malformed"))
				return
			}

			ctx = requestcontext.WithActorDID(ctx, did)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
