package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/alltuner/vibetuner/core/handler"
)

const wsWriteWait = 10 * time.Second

// wsStream delivers the same event stream over a websocket: events become
// JSON text frames {"event","data"} and keepalives become ping frames.
func wsStream(events <-chan Event, cfg streamConfig, upgrader *websocket.Upgrader) handler.Response {
	return func(w http.ResponseWriter, req *http.Request) error {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			cfg.fail(req.Context(), fmt.Errorf("websocket upgrade: %w", err))
			return nil
		}
		defer func() { _ = conn.Close() }()

		// A hijacked connection no longer cancels the request context on
		// disconnect, so a reader goroutine watches for the close instead.
		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

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
				closeWS(conn, websocket.CloseGoingAway)
				return nil

			case <-idle:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cfg.fail(ctx, fmt.Errorf("failed to send ping: %w", err))
					return nil
				}

			case ev, ok := <-events:
				if !ok {
					closeWS(conn, websocket.CloseNormalClosure)
					return nil
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					cfg.fail(ctx, fmt.Errorf("failed to encode event: %w", err))
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					cfg.fail(ctx, fmt.Errorf("failed to write event: %w", err))
					return nil
				}
			}

			if timer != nil {
				timer.Reset(cfg.keepAlive)
			}
		}
	}
}

func closeWS(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
