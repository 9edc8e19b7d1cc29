package live

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alltuner/vibetuner/core/handler"
	"github.com/alltuner/vibetuner/core/health"
	"github.com/alltuner/vibetuner/core/logger"
	"github.com/alltuner/vibetuner/core/router"
	"github.com/alltuner/vibetuner/core/sse"
)

// routes registers health probes and the live group:
//
//	GET  /health/live
//	GET  /health/ready
//	GET  /live/events/{channel}     event stream, or WebSocket on upgrade
//	POST /live/broadcast/{channel}  form fields "event" and "data"
func (a *App) routes() {
	var checks []func(context.Context) error
	if a.bus.check != nil {
		checks = append(checks, a.bus.check)
	}

	a.router.Get("/health/live", handler.Adapt(health.Liveness, nil))
	a.router.Get("/health/ready", handler.Adapt(health.Readiness(a.logger, checks...), nil))

	g := router.NewGroup(a.router, "/live")
	a.sse.Mount(g, "/events/{channel}", sse.ChannelFunc(channelParam), sse.WithWebSocket())
	g.Post("/broadcast/{channel}", handler.Adapt(a.broadcast, nil))
}

func channelParam(r *http.Request) (string, error) {
	return chi.URLParam(r, "channel"), nil
}

func (a *App) broadcast(r *http.Request) handler.Response {
	channel := chi.URLParam(r, "channel")
	if err := r.ParseForm(); err != nil {
		return handler.Error(http.StatusBadRequest, err)
	}

	opts := []sse.BroadcastOption{sse.WithData(r.PostForm.Get("data"))}
	if name := r.PostForm.Get("event"); name != "" {
		opts = append(opts, sse.WithEventName(name))
	}

	if err := a.sse.Broadcast(r.Context(), channel, opts...); err != nil {
		if errors.Is(err, sse.ErrInvalidChannelName) || errors.Is(err, sse.ErrInvalidEventName) {
			return handler.Error(http.StatusBadRequest, err)
		}
		a.logger.ErrorContext(r.Context(), "broadcast failed", logger.Channel(channel), logger.Error(err))
		return handler.Error(http.StatusInternalServerError, nil)
	}

	return func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return nil
	}
}
