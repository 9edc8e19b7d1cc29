package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alltuner/vibetuner/core/logger"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// RequestID assigns every request an ID, reusing an incoming X-Request-ID
// header when present. The ID is stored in the request context and echoed in
// the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id)))
	})
}

// GetRequestID returns the request ID stored by RequestID.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok && id != ""
}

// Logging logs one line per completed request. Server errors are logged at
// error level, client errors and requests slower than slow at warn level.
// Long-lived event streams are logged when they end.
func Logging(log *slog.Logger, slow time.Duration) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = 5 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := newResponseWriter(w)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if !ww.Written() {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			level := slog.LevelInfo
			attrs := []slog.Attr{
				logger.Component("http"),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.StatusCode(status),
				logger.BytesOut(ww.Size()),
				logger.Duration(elapsed),
			}
			if id, ok := GetRequestID(r.Context()); ok {
				attrs = append(attrs, logger.RequestID(id))
			}
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case elapsed > slow && ww.Header().Get("Content-Type") != "text/event-stream":
				level = slog.LevelWarn
				attrs = append(attrs, slog.Bool("slow_request", true))
			}
			log.LogAttrs(r.Context(), level, "HTTP request completed", attrs...)
		})
	}
}
