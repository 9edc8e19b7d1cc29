package health

import (
	"io"
	"net/http"

	"github.com/alltuner/vibetuner/core/handler"
)

// Liveness indicates if the service process is running.
// Always returns "ALIVE" with 200 OK. No dependency checks.
//
// Example:
//
//	r.Get("/health/live", handler.Adapt(health.Liveness, nil))
func Liveness(*http.Request) handler.Response {
	return text(http.StatusOK, "ALIVE")
}

// NoContent returns HTTP 204 without body. Ideal for high-frequency checks.
func NoContent(*http.Request) handler.Response {
	return nil
}

func text(status int, body string) handler.Response {
	return func(w http.ResponseWriter, _ *http.Request) error {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, err := io.WriteString(w, body)
		return err
	}
}
