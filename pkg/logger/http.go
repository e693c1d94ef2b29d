package logger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware logs every request and its outcome. The wrapped writer keeps
// http.Hijacker available so websocket upgrades pass through.
func (l *logger) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, correlationID := EnsureHTTPCorrelationID(r)

		requestLogger := l.WithFields(
			ClientIPField(r.RemoteAddr),
			HTTPMethodField(r.Method),
			HTTPPathField(r.URL.Path),
			CorrelationIDField(correlationID),
		)
		requestLogger.Debug("HTTP request received")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestLogger.Info("HTTP response sent",
			HTTPStatusField(status),
			IntField("response_bytes", ww.BytesWritten()),
			DurationField("duration", time.Since(start)),
		)
	})
}
