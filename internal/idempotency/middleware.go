package idempotency

import (
	"log/slog"
	"net/http"

	"tranche/internal/transport/shared"
	dErrors "tranche/pkg/domain-errors"
)

// Header carries the client-chosen key on mutation requests.
const Header = "Idempotency-Key"

// Middleware claims the Idempotency-Key before the handler runs and
// releases it when the handler answers with a non-2xx status, so failed
// mutations can be retried with the same key. Requests without the header
// pass through unguarded.
func Middleware(guard Guard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			claimed, err := guard.Claim(r.Context(), key, DefaultRetention)
			if err != nil {
				shared.Error(w, r, logger, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency check failed"))
				return
			}
			if !claimed {
				shared.Error(w, r, logger, dErrors.New(dErrors.CodeConflict, "request with this idempotency key was already processed"))
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.status >= http.StatusBadRequest {
				if err := guard.Release(r.Context(), key); err != nil {
					logger.WarnContext(r.Context(), "failed to release idempotency key", "error", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
