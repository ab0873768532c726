package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"openprotect-lab/pkg/logger"
)

// HTTPObserver records request metrics
type HTTPObserver interface {
	ObserveHTTP(route, method string, code int, duration time.Duration)
}

// Logger returns a middleware that logs requests and, when obs is set,
// records them by route pattern
func Logger(log *logger.Logger, obs HTTPObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				duration := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				if obs != nil {
					route := "unmatched"
					if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
						route = rctx.RoutePattern()
					}
					obs.ObserveHTTP(route, r.Method, status, duration)
				}

				reqLog := log.WithRequestID(middleware.GetReqID(r.Context()))
				reqLog.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", duration).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
