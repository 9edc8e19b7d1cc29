package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alltuner/vibetuner/core/handler"
	"github.com/alltuner/vibetuner/core/logger"
)

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
//
// Example:
//
//	ready := health.Readiness(log, redis.Healthcheck(client))
//	r.Get("/health/ready", handler.Adapt(ready, nil))
func Readiness(log *slog.Logger, fn ...func(context.Context) error) handler.HandlerFunc {
	return func(r *http.Request) handler.Response {
		ctx := r.Context()
		for _, f := range fn {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "Readiness check failed", logger.Error(err))
				return text(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
			}
		}

		return text(http.StatusOK, "READY")
	}
}
