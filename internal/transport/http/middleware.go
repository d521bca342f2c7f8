package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/policy"
)

const (
	headerUserID    = "X-User-ID"
	headerUserRoles = "X-User-Roles"
)

type loggerKey struct{}

type callerKey struct{}

// RequestLogger logs basic request details and latency. Handlers reach the
// request-scoped entry through loggerFrom.
func RequestLogger(next http.Handler, logger logrus.FieldLogger) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), loggerKey{}, entry)))

		entry = entry.WithFields(logrus.Fields{
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Info("request")
	})
}

func loggerFrom(ctx context.Context) logrus.FieldLogger {
	if l, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return logrus.StandardLogger()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Identify reads the caller established by the upstream auth layer from the
// X-User-ID and X-User-Roles headers. It never rejects a request; handlers
// decide through the policy package.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := policy.Caller{
			UserID: r.Header.Get(headerUserID),
			Roles:  policy.ParseRoles(r.Header.Get(headerUserRoles)),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(ctx context.Context) policy.Caller {
	c, _ := ctx.Value(callerKey{}).(policy.Caller)
	return c
}

// authorize writes the rejection itself and reports whether to continue.
func authorize(w http.ResponseWriter, r *http.Request, action policy.Action) (policy.Caller, bool) {
	caller := callerFrom(r.Context())
	if err := policy.Authorize(caller, action); err != nil {
		writeServiceError(w, r, err)
		return caller, false
	}
	return caller, true
}

func authorizeOwner(w http.ResponseWriter, r *http.Request, caller policy.Caller, ownerUserID string) bool {
	if err := policy.AuthorizeOwner(caller, ownerUserID); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return true
}
