package middleware

import (
	"net/http"
	"strings"
	"time"
)

const tenantPathPrefix = "/api/tenants/"

type logger interface {
	Info(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			next.ServeHTTP(lw, r)

			// Query is not logged: oauth callbacks carry code and state there
			l.Info(
				"got HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"tenant_id", tenantSegment(r.URL.Path),
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			)
		})
	}
}

// tenantSegment returns the raw tenant id of tenant scoped paths, empty string otherwise.
// Logger wraps the whole mux so path values are not matched yet.
func tenantSegment(path string) string {
	rest, ok := strings.CutPrefix(path, tenantPathPrefix)
	if !ok {
		return ""
	}
	tenant, _, _ := strings.Cut(rest, "/")
	return tenant
}
