// Package health provides HTTP handlers for service health monitoring.
//
// Handlers:
//   - Liveness: Process is running (no dependency checks)
//   - Readiness: All dependencies are available
//   - NoContent: Returns 204 for minimal overhead
//
// Usage:
//
//	r.Get("/health/live", handler.Adapt(health.Liveness, nil))
//	r.Get("/health/ready", handler.Adapt(health.Readiness(log,
//		redis.Healthcheck(client),
//		pg.Healthcheck(pool),
//	), nil))
//	r.Get("/ping", handler.Adapt(health.NoContent, nil))
//
// Dependency checks must follow func(context.Context) error signature.
package health
