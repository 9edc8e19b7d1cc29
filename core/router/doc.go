// Package router provides chi routers with request IDs, panic recovery,
// optional request logging and prefixed route groups.
//
// # Basic Usage
//
//	r := router.New(router.WithLogger(log))
//	r.Get("/health/ready", ready)
//
//	live := router.NewGroup(r, "/live")
//	svc.Mount(live, "/events", sse.Channel("notifications")) // served at /live/events
//
// Group exposes its Prefix so that route registrars can detect paths that
// repeat the prefix, such as "/live/events" mounted on the "/live" group.
//
// # Panic Recovery
//
// Recover turns handler panics into a 500 response. Panics raised after a
// streaming response has started are only logged. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
//
// # Request IDs and Logging
//
// Every request carries an ID from the X-Request-ID header, or a new UUID;
// read it with GetRequestID. WithRequestLogging logs each completed request
// with its status, size and duration.
package router
