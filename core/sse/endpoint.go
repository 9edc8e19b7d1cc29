package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alltuner/vibetuner/core/handler"
	"github.com/alltuner/vibetuner/core/logger"
)

// Resolution is the outcome of per-request mode inspection. Source takes
// precedence over Channel.
type Resolution struct {
	Channel string
	Source  <-chan Item
}

// Mode selects how a stream endpoint finds its events. Use Channel,
// ChannelFunc, Generator or Inspect to build one.
type Mode interface {
	resolve(r *http.Request) (Resolution, error)
}

type staticChannel string

func (m staticChannel) resolve(*http.Request) (Resolution, error) {
	return Resolution{Channel: string(m)}, nil
}

type channelFunc func(r *http.Request) (string, error)

func (m channelFunc) resolve(r *http.Request) (Resolution, error) {
	ch, err := m(r)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Channel: ch}, nil
}

type generator func(r *http.Request) (<-chan Item, error)

func (m generator) resolve(r *http.Request) (Resolution, error) {
	src, err := m(r)
	if err != nil {
		return Resolution{}, err
	}
	if src == nil {
		return Resolution{}, fmt.Errorf("%w: generator returned a nil source", ErrConfiguration)
	}
	return Resolution{Source: src}, nil
}

type inspect func(r *http.Request) (Resolution, error)

func (m inspect) resolve(r *http.Request) (Resolution, error) { return m(r) }

// Channel streams a fixed channel.
func Channel(name string) Mode { return staticChannel(name) }

// ChannelFunc computes the channel from the request, e.g. from a path parameter.
func ChannelFunc(fn func(r *http.Request) (string, error)) Mode { return channelFunc(fn) }

// Generator relays the items produced by fn. The source controls its own
// pacing and should stop when r.Context() is done; closing it ends the stream.
func Generator(fn func(r *http.Request) (<-chan Item, error)) Mode { return generator(fn) }

// Inspect decides per request between a generator source and a channel.
// An empty Resolution falls back to WithFallbackChannel.
func Inspect(fn func(r *http.Request) (Resolution, error)) Mode { return inspect(fn) }

type endpointConfig struct {
	template  string
	keepAlive time.Duration
	fallback  string
	reconnect int
	onError   func(context.Context, error)
	websocket bool
}

// EndpointOption configures a stream endpoint.
type EndpointOption func(*endpointConfig)

// WithItemTemplate sets the template used to render generator items that
// carry a Context but no Data.
func WithItemTemplate(name string) EndpointOption {
	return func(c *endpointConfig) {
		c.template = name
	}
}

// WithStreamKeepAlive overrides the service keepalive interval for this endpoint.
func WithStreamKeepAlive(d time.Duration) EndpointOption {
	return func(c *endpointConfig) {
		c.keepAlive = d
	}
}

// WithFallbackChannel sets the channel used when the mode resolves to nothing.
func WithFallbackChannel(name string) EndpointOption {
	return func(c *endpointConfig) {
		c.fallback = name
	}
}

// WithReconnectTime sends a retry field so clients wait d before reconnecting.
func WithReconnectTime(d time.Duration) EndpointOption {
	return func(c *endpointConfig) {
		c.reconnect = int(d / time.Millisecond)
	}
}

// WithStreamErrorHandler receives write and render failures of open streams.
func WithStreamErrorHandler(fn func(context.Context, error)) EndpointOption {
	return func(c *endpointConfig) {
		c.onError = fn
	}
}

// WithWebSocket serves websocket upgrade requests with JSON frames instead of
// an event-stream. Plain requests still get the event-stream.
func WithWebSocket() EndpointOption {
	return func(c *endpointConfig) {
		c.websocket = true
	}
}

// Router is the route-registration collaborator. chi.Router satisfies it.
type Router interface {
	Get(pattern string, h http.HandlerFunc)
}

// prefixed is implemented by routers mounted under a path prefix.
type prefixed interface {
	Prefix() string
}

// Mount registers a stream endpoint as a GET route on r.
// When r is mounted under a prefix that path already starts with, the route
// would be served at a doubled URL; this is logged, not rejected.
func (s *Service) Mount(r Router, path string, mode Mode, opts ...EndpointOption) {
	if p, ok := r.(prefixed); ok {
		prefix := strings.TrimSuffix(p.Prefix(), "/")
		if prefix != "" && (path == prefix || strings.HasPrefix(path, prefix+"/")) {
			suggested := path[len(prefix):]
			if suggested == "" {
				suggested = "/"
			}
			s.logger.Warn("sse endpoint path repeats the router prefix",
				logger.Component("sse"),
				logger.Path(path),
				logger.Key("prefix", prefix),
				logger.Key("suggested_path", suggested),
			)
		}
	}
	r.Get(path, s.Handler(mode, opts...))
}

// Handler returns an http.HandlerFunc streaming the events selected by mode.
// The mode is resolved on every request.
func (s *Service) Handler(mode Mode, opts ...EndpointOption) http.HandlerFunc {
	cfg := &endpointConfig{keepAlive: s.keepAlive}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.onError == nil {
		cfg.onError = func(ctx context.Context, err error) {
			s.logger.DebugContext(ctx, "sse stream error", logger.Component("sse"), logger.Error(err))
		}
	}

	return handler.Adapt(func(r *http.Request) handler.Response {
		res, err := s.resolve(r, mode, cfg)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrInvalidChannelName) {
				status = http.StatusBadRequest
				s.logger.WarnContext(r.Context(), "sse endpoint rejected channel",
					logger.Component("sse"), logger.Path(r.URL.Path), logger.Error(err))
			} else {
				s.logger.ErrorContext(r.Context(), "sse endpoint resolution failed",
					logger.Component("sse"), logger.Path(r.URL.Path), logger.Error(err))
			}
			return handler.Error(status, err)
		}
		if res.Source != nil {
			return s.generate(res.Source, cfg)
		}
		return s.subscribe(res.Channel, cfg)
	}, nil)
}

func (s *Service) resolve(r *http.Request, mode Mode, cfg *endpointConfig) (Resolution, error) {
	if mode == nil {
		return s.fallback(cfg)
	}
	res, err := mode.resolve(r)
	if err != nil {
		return Resolution{}, err
	}
	if res.Source != nil {
		return res, nil
	}
	if res.Channel == "" {
		return s.fallback(cfg)
	}
	if err := ValidateChannel(res.Channel); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (s *Service) fallback(cfg *endpointConfig) (Resolution, error) {
	if cfg.fallback == "" {
		return Resolution{}, ErrConfiguration
	}
	if err := ValidateChannel(cfg.fallback); err != nil {
		return Resolution{}, fmt.Errorf("%w: fallback channel: %w", ErrConfiguration, err)
	}
	return Resolution{Channel: cfg.fallback}, nil
}

// subscribe streams one channel. The subscriber is released on every exit path.
func (s *Service) subscribe(channel string, cfg *endpointConfig) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		sub, err := s.registry.Subscribe(channel)
		if err != nil {
			return handler.Error(http.StatusBadRequest, err)(w, r)
		}
		defer s.registry.Unsubscribe(sub)

		start := time.Now()
		s.logger.DebugContext(r.Context(), "sse stream opened",
			logger.Component("sse"), logger.Channel(channel), logger.SubscriberID(sub.ID()))
		defer func() {
			s.logger.DebugContext(r.Context(), "sse stream closed",
				logger.Component("sse"), logger.Channel(channel),
				logger.SubscriberID(sub.ID()), logger.Elapsed(start))
		}()

		// The listener connects in the background so a slow bus never
		// delays the stream headers.
		if !s.bridge.Running() {
			go s.bridge.Start(context.WithoutCancel(r.Context()))
		}
		return s.deliver(sub.Events(), cfg)(w, r)
	}
}

// generate relays a caller-supplied source, rendering items as needed.
func (s *Service) generate(src <-chan Item, cfg *endpointConfig) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := make(chan Event)
		go func() {
			defer close(events)
			for {
				select {
				case <-ctx.Done():
					return
				case it, ok := <-src:
					if !ok {
						return
					}
					ev, err := s.itemEvent(ctx, r, it, cfg)
					if err != nil {
						cfg.onError(ctx, err)
						continue
					}
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()

		return s.deliver(events, cfg)(w, r)
	}
}

func (s *Service) itemEvent(ctx context.Context, r *http.Request, it Item, cfg *endpointConfig) (Event, error) {
	if !validFieldValue(it.Event) {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidEventName, it.Event)
	}
	if !validFieldValue(it.ID) {
		return Event{}, fmt.Errorf("sse: event id must not contain line breaks: %q", it.ID)
	}
	ev := Event{Event: it.Event, Data: it.Data, ID: it.ID}
	if ev.Data == "" && it.Context != nil && cfg.template != "" {
		data, err := s.render(ctx, r, cfg.template, it.Context)
		if err != nil {
			return Event{}, err
		}
		ev.Data = data
	}
	return ev, nil
}

func (s *Service) deliver(events <-chan Event, cfg *endpointConfig) handler.Response {
	sc := streamConfig{
		keepAlive: cfg.keepAlive,
		reconnect: cfg.reconnect,
		onError:   cfg.onError,
		done:      s.done,
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		if cfg.websocket && websocket.IsWebSocketUpgrade(r) {
			return wsStream(events, sc, s.upgrader)(w, r)
		}
		return stream(events, sc)(w, r)
	}
}
