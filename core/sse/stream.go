package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alltuner/vibetuner/core/handler"
)

// DefaultKeepAlive is the idle interval after which a keepalive comment is sent.
const DefaultKeepAlive = 30 * time.Second

type streamConfig struct {
	keepAlive time.Duration
	reconnect int
	onError   func(context.Context, error)
	// done ends the stream when closed, independent of the request context.
	done <-chan struct{}
}

// stream writes events from the channel as an event-stream until the client
// goes away, done is closed, or events is closed. When no event arrives for
// keepAlive, a comment-only keepalive frame is written instead.
func stream(events <-chan Event, cfg streamConfig) handler.Response {
	return func(w http.ResponseWriter, req *http.Request) error {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return nil
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		ctx := req.Context()

		if cfg.reconnect > 0 {
			if _, err := fmt.Fprintf(w, "retry: %d\n\n", cfg.reconnect); err != nil {
				cfg.fail(ctx, fmt.Errorf("failed to write retry field: %w", err))
				return nil
			}
		}
		if err := writeComment(w, "connected"); err != nil {
			cfg.fail(ctx, fmt.Errorf("failed to write connection message: %w", err))
			return nil
		}
		flusher.Flush()

		var idle <-chan time.Time
		var timer *time.Timer
		if cfg.keepAlive > 0 {
			timer = time.NewTimer(cfg.keepAlive)
			defer timer.Stop()
			idle = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case <-cfg.done:
				return nil

			case <-idle:
				if err := writeComment(w, "keepalive"); err != nil {
					cfg.fail(ctx, fmt.Errorf("failed to send keepalive: %w", err))
					return nil
				}
				flusher.Flush()

			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := writeEvent(w, ev); err != nil {
					cfg.fail(ctx, fmt.Errorf("failed to write event: %w", err))
					return nil
				}
				flusher.Flush()
			}

			if timer != nil {
				timer.Reset(cfg.keepAlive)
			}
		}
	}
}

func (c streamConfig) fail(ctx context.Context, err error) {
	if c.onError != nil {
		c.onError(ctx, err)
	}
}
