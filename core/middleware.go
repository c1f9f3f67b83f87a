package core

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture the status code
// written by downstream handlers.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests. Errors (status >= 400) and slow
// requests are always logged; in development mode every request is logged.
func LoggingMiddleware(logger Logger, devMode bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error("HTTP request failed", fields)
			case rw.statusCode >= 400:
				logger.Warn("HTTP request error", fields)
			case duration > 5*time.Second:
				logger.Warn("Slow HTTP request", fields)
			case devMode:
				logger.Info("HTTP request", fields)
			}
		})
	}
}

// RecoveryMiddleware converts handler panics into 500 responses so a single
// bad request cannot take down the server.
func RecoveryMiddleware(logger Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Panic in HTTP handler", map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
						"panic":  fmt.Sprintf("%v", rec),
						"stack":  string(debug.Stack()),
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
