package sse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/alltuner/vibetuner/core/logger"
)

// Service is the process-wide live-event engine. Construct one at application
// start and share it; it owns the local registry and the relay bridge.
type Service struct {
	registry  *Registry
	bridge    *Bridge
	renderer  Renderer
	logger    *slog.Logger
	keepAlive time.Duration
	upgrader  *websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once
}

type serviceOptions struct {
	connector        Connector
	namespace        string
	queueSize        int
	keepAlive        time.Duration
	renderer         Renderer
	logger           *slog.Logger
	meterProvider    metric.MeterProvider
	onRelayError     func(context.Context, error)
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	upgrader         *websocket.Upgrader
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithConnector sets the relay bus connector. Without one, delivery is local only.
func WithConnector(c Connector) Option {
	return func(o *serviceOptions) {
		o.connector = c
	}
}

// WithNamespace sets the deployment namespace prefixed to bus topics.
func WithNamespace(namespace string) Option {
	return func(o *serviceOptions) {
		o.namespace = namespace
	}
}

// WithQueueSize sets the per-subscriber queue size.
func WithQueueSize(size int) Option {
	return func(o *serviceOptions) {
		o.queueSize = size
	}
}

// WithKeepAlive sets the default keepalive interval for stream endpoints.
func WithKeepAlive(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.keepAlive = d
	}
}

// WithRenderer sets the template renderer used by template broadcasts and
// generator endpoints.
func WithRenderer(r Renderer) Option {
	return func(o *serviceOptions) {
		o.renderer = r
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = log
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serviceOptions) {
		o.meterProvider = mp
	}
}

// WithRelayErrorHandler registers a hook for best-effort relay failures.
func WithRelayErrorHandler(fn func(context.Context, error)) Option {
	return func(o *serviceOptions) {
		o.onRelayError = fn
	}
}

// WithRelayReconnect sets the relay listener reconnect backoff bounds.
func WithRelayReconnect(initial, max time.Duration) Option {
	return func(o *serviceOptions) {
		o.reconnectInitial = initial
		o.reconnectMax = max
	}
}

// WithUpgrader sets the websocket upgrader used by endpoints with WithWebSocket.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(o *serviceOptions) {
		o.upgrader = u
	}
}

// New creates a Service.
func New(opts ...Option) *Service {
	o := &serviceOptions{
		queueSize: DefaultQueueSize,
		keepAlive: DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}
	if o.upgrader == nil {
		o.upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}

	m := newMetrics(o.meterProvider)
	registry := NewRegistry(
		WithRegistryQueueSize(o.queueSize),
		WithRegistryLogger(o.logger),
		withRegistryMetrics(m),
	)
	bridge := NewBridge(o.connector, registry,
		WithBridgeNamespace(o.namespace),
		WithBridgeLogger(o.logger),
		WithBridgeErrorHandler(o.onRelayError),
		WithBridgeReconnectBackoff(o.reconnectInitial, o.reconnectMax),
		withBridgeMetrics(m),
	)

	return &Service{
		registry:  registry,
		bridge:    bridge,
		renderer:  o.renderer,
		logger:    o.logger,
		keepAlive: o.keepAlive,
		upgrader:  o.upgrader,
		done:      make(chan struct{}),
	}
}

// Registry returns the local subscriber registry.
func (s *Service) Registry() *Registry { return s.registry }

// Bridge returns the relay bridge.
func (s *Service) Bridge() *Bridge { return s.bridge }

type broadcastOptions struct {
	event    string
	data     string
	template string
	request  *http.Request
	context  any
}

// BroadcastOption configures a single broadcast.
type BroadcastOption func(*broadcastOptions)

// WithEventName sets the event name. Defaults to "message".
func WithEventName(name string) BroadcastOption {
	return func(b *broadcastOptions) {
		b.event = name
	}
}

// WithData sets the raw event data. Ignored when WithRender is used.
func WithData(data string) BroadcastOption {
	return func(b *broadcastOptions) {
		b.data = data
	}
}

// WithRender renders the named template with data for request r and uses
// the result as the event data. r is required.
func WithRender(template string, r *http.Request, data any) BroadcastOption {
	return func(b *broadcastOptions) {
		b.template = template
		b.request = r
		b.context = data
	}
}

// Broadcast sends an event to every subscriber of channel, in this process
// and, when a bus is configured, in every other process.
//
// Only caller errors are returned: an invalid channel or event name, or a
// template failure. Relay problems are logged and never affect local delivery.
func (s *Service) Broadcast(ctx context.Context, channel string, opts ...BroadcastOption) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}

	b := &broadcastOptions{event: DefaultEventName}
	for _, opt := range opts {
		opt(b)
	}
	if !validFieldValue(b.event) {
		return ErrInvalidEventName
	}

	if b.template != "" {
		data, err := s.render(ctx, b.request, b.template, b.context)
		if err != nil {
			return err
		}
		b.data = data
	}

	ev := Event{Event: b.event, Data: b.data}
	n := s.registry.Dispatch(channel, ev)
	s.logger.DebugContext(ctx, "sse event dispatched",
		logger.Component("sse"),
		logger.Channel(channel),
		logger.Event(ev.Event),
		logger.Count("local_subscribers", n),
	)

	s.bridge.Start(ctx)
	s.bridge.Publish(ctx, channel, ev)
	return nil
}

func (s *Service) render(ctx context.Context, r *http.Request, template string, data any) (string, error) {
	if r == nil {
		return "", ErrTemplateRequiresRequest
	}
	if s.renderer == nil {
		return "", ErrNoRenderer
	}
	out, err := s.renderer.Render(ctx, r, template, data)
	if err != nil {
		return "", fmt.Errorf("sse: render %q: %w", template, err)
	}
	return out, nil
}

// Shutdown ends every open stream and stops the relay bridge.
// Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.bridge.Shutdown(ctx)
}
