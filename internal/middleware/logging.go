package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/openledger/apiserver/internal/logging"
)

// AccessLog logs one line per request and puts chi's request id into the
// context so service-level log lines carry it too. It must run after
// chimw.RequestID.
func AccessLog(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
			r = r.WithContext(ctx)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			}
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error(ctx, "request", args...)
			case status >= http.StatusBadRequest:
				logger.Warn(ctx, "request", args...)
			default:
				logger.Info(ctx, "request", args...)
			}
		})
	}
}
