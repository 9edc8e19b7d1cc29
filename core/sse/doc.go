// Package sse broadcasts server-sent events to long-lived client streams,
// across every process of a deployment.
//
// A Service owns a process-local Registry of subscriber queues and a relay
// Bridge to a shared pub/sub bus. Broadcast validates the channel, dispatches
// to local subscribers first and then publishes to the bus, where the other
// processes' bridges pick the event up and dispatch it into their own
// registries. Relay failures never reach the broadcasting caller; without a
// bus, delivery is local only.
//
// # Basic Usage
//
//	svc := sse.New(
//		sse.WithConnector(redisbus.New("redis://localhost:6379/0")),
//		sse.WithNamespace("myapp:prod:"),
//		sse.WithLogger(log),
//	)
//	defer svc.Shutdown(context.Background())
//
//	r := chi.NewRouter()
//	svc.Mount(r, "/events/notifications", sse.Channel("notifications"))
//	svc.Mount(r, "/events/room/{id}", sse.ChannelFunc(func(r *http.Request) (string, error) {
//		return "room:" + chi.URLParam(r, "id"), nil
//	}))
//
//	err := svc.Broadcast(ctx, "notifications",
//		sse.WithEventName("update"),
//		sse.WithData("<div>New item!</div>"),
//	)
//
// # Endpoint Modes
//
// Channel streams a fixed channel, ChannelFunc computes it per request,
// Generator relays a caller-controlled source of Items and Inspect decides
// per request. A mode that resolves to nothing falls back to
// WithFallbackChannel or fails with ErrConfiguration.
//
// Channel streams send a ": keepalive" comment after every idle interval
// (30 seconds by default) and release their subscription on every exit path.
//
// # Templates
//
// WithRender and WithItemTemplate render HTML fragments through the
// configured Renderer: NewTemplateRenderer for html/template sets or
// NewTemplRenderer for templ components.
//
// # Errors
//
// ErrInvalidChannelName, ErrConfiguration and template errors are returned to
// callers. Relay problems are *RelayError and *MalformedMessageError values
// that only reach the logger and the WithRelayErrorHandler hook.
package sse
