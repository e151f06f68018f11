package backend

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chmw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/maniack/logpurge/internal/monitoring"
)

func RequestIDFromCtx(ctx context.Context) (string, bool) {
	if rid := chmw.GetReqID(ctx); rid != "" {
		return rid, true
	}
	return "", false
}

// routeOf returns the matched chi pattern, keeping metric labels bounded.
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RequestLogger logs and counts every request. Successful requests to
// quietPaths (health probes) are logged at debug level.
func RequestLogger(l *logrus.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chmw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routeOf(r)
			monitoring.IncHTTP(r.Method, route, strconv.Itoa(status))

			rid, _ := RequestIDFromCtx(r.Context())
			entry := l.WithContext(r.Context()).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      status,
				"size":        ww.BytesWritten(),
				"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
				"request_id":  rid,
			})
			if _, ok := quiet[r.URL.Path]; ok && status < 400 {
				entry.Debug("request")
				return
			}
			entry.Info("request")
		})
	}
}

// SecurityHeaders adds common security-related headers to all responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	csp := strings.Join([]string{
		"default-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"img-src 'self' data:",
		"frame-ancestors 'none'",
	}, "; ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
