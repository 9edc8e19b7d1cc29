package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/alltuner/vibetuner/core/logger"
)

// panicError carries a recovered panic value and the stack trace captured at
// the panic point.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// Unwrap allows errors.Is/As to work with wrapped panics.
func (e *panicError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}

// Recover converts handler panics into a logged 500 response. Once a
// streaming handler has written headers, the panic is only logged.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := newResponseWriter(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				perr := &panicError{value: p, stack: debug.Stack()}
				if ww.Written() {
					log.ErrorContext(r.Context(), "panic after response written",
						logger.Error(perr),
						logger.Path(r.URL.Path),
						slog.Int("status", ww.Status()),
						slog.String("stack", string(perr.stack)),
					)
					return
				}
				log.ErrorContext(r.Context(), "panic recovered",
					logger.Error(perr),
					logger.Path(r.URL.Path),
					slog.String("stack", string(perr.stack)),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
