package http

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by both storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness, including whether the store answers.
func HealthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			loggerFrom(r.Context()).WithError(err).Warn("health check failed")
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "store unavailable")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
