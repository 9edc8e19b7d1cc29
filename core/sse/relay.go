package sse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/alltuner/vibetuner/core/logger"
)

// ErrBridgeClosed is reported when the bridge is used after Shutdown.
var ErrBridgeClosed = errors.New("sse: relay bridge closed")

// errRelayBackoff is returned while a failed connection attempt is cooling
// down. It is not reported; the failure that opened the window already was.
var errRelayBackoff = errors.New("sse: relay connect backing off")

const (
	defaultReconnectInitial = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
	relayWarnInterval       = time.Minute
)

// Dispatcher receives events relayed from the bus. *Registry implements it.
type Dispatcher interface {
	Dispatch(channel string, ev Event) int
}

// wireEvent is the bus payload. Origin lets a bridge skip its own messages,
// which were already dispatched locally before publishing.
type wireEvent struct {
	Event  string `json:"event"`
	Data   string `json:"data"`
	Origin string `json:"origin,omitempty"`
}

// TopicPrefix returns the bus topic prefix for a deployment namespace.
func TopicPrefix(namespace string) string {
	return namespace + "sse:"
}

// Bridge relays events between this process and the shared bus.
// The listener and the publish connection are created lazily and torn down
// by Shutdown. A Bridge without a Connector delivers locally only.
type Bridge struct {
	id         string
	connector  Connector
	dispatcher Dispatcher
	prefix     string
	logger     *slog.Logger
	metrics    *metrics
	onError    func(context.Context, error)

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	warn      rate.Sometimes
	localOnce sync.Once

	// starting admits one connect attempt at a time; other callers return
	// at once. startMu guards installing and tearing down the listener.
	running   atomic.Bool
	starting  atomic.Bool
	shutdown  atomic.Bool
	startGate *retryGate
	startMu   sync.Mutex
	closed    bool
	cancel    context.CancelFunc
	wg        *conc.WaitGroup

	// pubDial is non-nil while a publish connection is being dialed and is
	// closed when the attempt ends.
	pubMu   sync.Mutex
	pub     Conn
	pubDial chan struct{}
	pubGate *retryGate
}

// retryGate spaces out connection attempts after failures so that callers
// skip a dead bus instead of each waiting for it to time out.
type retryGate struct {
	mu    sync.Mutex
	bo    *backoff.ExponentialBackOff
	max   time.Duration
	until time.Time
}

func newRetryGate(initial, max time.Duration) *retryGate {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	bo.Reset()
	return &retryGate{bo: bo, max: max}
}

// allow reports whether the cool-down after the last failure has passed.
func (g *retryGate) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !time.Now().Before(g.until)
}

// fail closes the gate for the next backoff interval.
func (g *retryGate) fail() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	wait := g.bo.NextBackOff()
	if wait == backoff.Stop {
		wait = g.max
	}
	g.until = time.Now().Add(wait)
	return wait
}

func (g *retryGate) succeed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bo.Reset()
	g.until = time.Time{}
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeNamespace sets the deployment namespace prepended to bus topics.
func WithBridgeNamespace(namespace string) BridgeOption {
	return func(b *Bridge) {
		b.prefix = TopicPrefix(namespace)
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(log *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if log != nil {
			b.logger = log
		}
	}
}

// WithBridgeErrorHandler registers a hook receiving every best-effort relay
// failure (*RelayError or *MalformedMessageError).
func WithBridgeErrorHandler(fn func(context.Context, error)) BridgeOption {
	return func(b *Bridge) {
		b.onError = fn
	}
}

// WithBridgeReconnectBackoff sets the listener reconnect backoff bounds.
func WithBridgeReconnectBackoff(initial, max time.Duration) BridgeOption {
	return func(b *Bridge) {
		if initial > 0 {
			b.reconnectInitial = initial
		}
		if max > 0 {
			b.reconnectMax = max
		}
	}
}

func withBridgeMetrics(m *metrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// NewBridge creates a bridge dispatching inbound events into d.
// connector may be nil, in which case broadcasting stays local.
func NewBridge(connector Connector, d Dispatcher, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		id:               uuid.NewString(),
		connector:        connector,
		dispatcher:       d,
		prefix:           TopicPrefix(""),
		logger:           logger.Discard(),
		reconnectInitial: defaultReconnectInitial,
		reconnectMax:     defaultReconnectMax,
		warn:             rate.Sometimes{First: 1, Interval: relayWarnInterval},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.startGate = newRetryGate(b.reconnectInitial, b.reconnectMax)
	b.pubGate = newRetryGate(b.reconnectInitial, b.reconnectMax)
	return b
}

// Prefix returns the topic prefix the bridge listens on.
func (b *Bridge) Prefix() string { return b.prefix }

// Topic returns the bus topic for channel.
func (b *Bridge) Topic(channel string) string { return b.prefix + channel }

// Enabled reports whether a bus is configured.
func (b *Bridge) Enabled() bool { return b.connector != nil }

// Running reports whether the listener is active.
func (b *Bridge) Running() bool { return b.running.Load() }

// Start launches the background listener if it is not running yet.
// Only one caller connects at a time; concurrent callers return without
// waiting. A failure is reported and leaves the bridge stopped, and calls
// made during the following backoff window return immediately.
func (b *Bridge) Start(ctx context.Context) {
	if b.connector == nil {
		b.noteLocalOnly()
		return
	}
	if b.running.Load() || b.shutdown.Load() || !b.startGate.allow() {
		return
	}
	if !b.starting.CompareAndSwap(false, true) {
		return
	}
	defer b.starting.Store(false)
	if b.running.Load() {
		return
	}

	conn, sub, err := b.listen(ctx)
	if err != nil {
		wait := b.startGate.fail()
		b.report(ctx, &RelayError{Op: "start", Err: err})
		b.logger.DebugContext(ctx, "sse relay start deferred",
			logger.Component("sse"),
			logger.Key("retry_in", wait),
		)
		return
	}
	b.startGate.succeed()

	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.closed {
		_ = sub.Close()
		_ = conn.Close()
		return
	}

	lctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg = &conc.WaitGroup{}
	b.wg.Go(func() { b.run(lctx, conn, sub) })
	b.running.Store(true)

	b.logger.DebugContext(ctx, "sse relay listener started",
		logger.Component("sse"),
		logger.Topic(b.prefix+"*"),
	)
}

// listen opens a dedicated connection and subscribes to the namespace prefix.
func (b *Bridge) listen(ctx context.Context) (Conn, Subscription, error) {
	conn, err := b.connector.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	sub, err := conn.Subscribe(ctx, b.prefix)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, sub, nil
}

// run consumes the subscription until ctx is cancelled, reconnecting with
// exponential backoff whenever the subscription drops.
func (b *Bridge) run(ctx context.Context, conn Conn, sub Subscription) {
	for {
		b.consume(ctx, sub)
		_ = sub.Close()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		b.report(ctx, &RelayError{Op: "listen", Err: fmt.Errorf("%w: subscription closed", ErrRelayUnavailable)})

		var ok bool
		conn, sub, ok = b.reconnect(ctx)
		if !ok {
			return
		}
	}
}

func (b *Bridge) consume(ctx context.Context, sub Subscription) {
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.handle(ctx, msg)
		}
	}
}

func (b *Bridge) reconnect(ctx context.Context) (Conn, Subscription, bool) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.reconnectInitial
	bo.MaxInterval = b.reconnectMax

	for attempt := 1; ; attempt++ {
		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = b.reconnectMax
		}
		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-time.After(sleep):
		}

		conn, sub, err := b.listen(ctx)
		if err == nil {
			b.logger.InfoContext(ctx, "sse relay listener reconnected",
				logger.Component("sse"),
				logger.RetryCount(attempt),
			)
			return conn, sub, true
		}
		if ctx.Err() != nil {
			return nil, nil, false
		}
		b.report(ctx, &RelayError{Op: "listen", Err: err})
	}
}

// handle relays one inbound message. Malformed messages are reported and
// skipped; they never stop the listener.
func (b *Bridge) handle(ctx context.Context, msg Message) {
	channel, ev, origin, err := b.decode(msg)
	if origin == b.id {
		return
	}
	if err != nil {
		b.metrics.addMalformed(ctx)
		b.logger.WarnContext(ctx, "skipping malformed sse relay message",
			logger.Component("sse"),
			logger.Topic(msg.Topic),
			logger.Error(err),
		)
		if b.onError != nil {
			b.onError(ctx, err)
		}
		return
	}
	b.dispatcher.Dispatch(channel, ev)
}

func (b *Bridge) decode(msg Message) (string, Event, string, error) {
	channel, ok := strings.CutPrefix(msg.Topic, b.prefix)
	if !ok || channel == "" {
		return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "topic outside namespace"}
	}

	var raw any
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "invalid JSON", Err: err}
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: fmt.Sprintf("payload is %T, not an object", raw)}
	}

	evVal, hasEvent := fields["event"]
	dataVal, hasData := fields["data"]
	if !hasEvent && !hasData {
		return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "missing 'event' and 'data' keys"}
	}

	var origin string
	if v, ok := fields["origin"].(string); ok {
		origin = v
	}

	ev := Event{Event: DefaultEventName}
	if hasEvent {
		s, ok := evVal.(string)
		if !ok {
			return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "'event' is not a string"}
		}
		if !validFieldValue(s) {
			return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "'event' contains a line break"}
		}
		ev.Event = s
	}
	if hasData {
		s, ok := dataVal.(string)
		if !ok {
			return "", Event{}, "", &MalformedMessageError{Topic: msg.Topic, Reason: "'data' is not a string"}
		}
		ev.Data = s
	}
	return channel, ev, origin, nil
}

// Publish relays ev to other processes. It is best effort: failures are
// reported and swallowed because local dispatch has already happened.
func (b *Bridge) Publish(ctx context.Context, channel string, ev Event) {
	if b.connector == nil {
		b.noteLocalOnly()
		return
	}

	conn, err := b.publisher(ctx)
	if err != nil {
		if !errors.Is(err, ErrBridgeClosed) && !errors.Is(err, errRelayBackoff) {
			b.report(ctx, &RelayError{Op: "connect", Channel: channel, Err: err})
		}
		return
	}

	payload, err := json.Marshal(wireEvent{Event: ev.Event, Data: ev.Data, Origin: b.id})
	if err != nil {
		b.report(ctx, &RelayError{Op: "publish", Channel: channel, Err: err})
		return
	}

	if err := conn.Publish(ctx, b.Topic(channel), payload); err != nil {
		if errors.Is(err, ErrRelayUnavailable) {
			b.resetPublisher(conn)
		}
		b.report(ctx, &RelayError{Op: "publish", Channel: channel, Err: err})
		return
	}
	b.metrics.addPublished(ctx)
}

// publisher returns the cached publish connection, creating it on first use.
// One caller dials while the others wait for that attempt; after a failure
// callers get errRelayBackoff until the retry window passes.
func (b *Bridge) publisher(ctx context.Context) (Conn, error) {
	for {
		b.pubMu.Lock()
		if b.shutdown.Load() {
			b.pubMu.Unlock()
			return nil, ErrBridgeClosed
		}
		if conn := b.pub; conn != nil {
			b.pubMu.Unlock()
			return conn, nil
		}
		if wait := b.pubDial; wait != nil {
			b.pubMu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if !b.pubGate.allow() {
			b.pubMu.Unlock()
			return nil, errRelayBackoff
		}
		done := make(chan struct{})
		b.pubDial = done
		b.pubMu.Unlock()

		return b.dialPublisher(ctx, done)
	}
}

func (b *Bridge) dialPublisher(ctx context.Context, done chan struct{}) (Conn, error) {
	conn, err := b.connector.Connect(ctx)

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.pubDial = nil
	close(done)

	if err != nil {
		b.pubGate.fail()
		return nil, err
	}
	b.pubGate.succeed()
	if b.shutdown.Load() {
		_ = conn.Close()
		return nil, ErrBridgeClosed
	}
	b.pub = conn
	return conn, nil
}

// resetPublisher drops the cached connection only if it is still the one
// that failed; a concurrent publisher may already have replaced it.
func (b *Bridge) resetPublisher(failed Conn) {
	b.pubMu.Lock()
	if b.pub != failed {
		b.pubMu.Unlock()
		return
	}
	b.pub = nil
	b.pubMu.Unlock()

	_ = failed.Close()
}

// Shutdown stops the listener, waits for it to exit (bounded by ctx), and
// closes both bus connections. Safe to call when the bridge never started
// and safe to call more than once.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.startMu.Lock()
	if b.closed {
		b.startMu.Unlock()
		return nil
	}
	b.closed = true
	b.shutdown.Store(true)
	cancel, wg := b.cancel, b.wg
	b.cancel, b.wg = nil, nil
	b.running.Store(false)
	b.startMu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			if r := wg.WaitAndRecover(); r != nil {
				b.report(ctx, &RelayError{Op: "listen", Err: r.AsError()})
			}
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("sse: waiting for relay listener: %w", ctx.Err()))
		}
	}

	b.pubMu.Lock()
	pub := b.pub
	b.pub = nil
	b.pubMu.Unlock()
	if pub != nil {
		if err := pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sse: closing relay publisher: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Bridge) noteLocalOnly() {
	b.localOnce.Do(func() {
		b.logger.Info("no relay bus configured, sse broadcasting is local-only",
			logger.Component("sse"),
		)
	})
}

// report logs a best-effort failure. Warnings are throttled; every failure is
// still logged at debug level and passed to the error hook.
func (b *Bridge) report(ctx context.Context, err *RelayError) {
	b.metrics.addFailure(ctx, err.Op)
	b.logger.DebugContext(ctx, "sse relay operation failed",
		logger.Component("sse"),
		logger.Action(err.Op),
		logger.Channel(err.Channel),
		logger.Error(err.Err),
	)
	b.warn.Do(func() {
		b.logger.WarnContext(ctx, "sse relay degraded, delivering locally only",
			logger.Component("sse"),
			logger.Action(err.Op),
			logger.Error(err.Err),
		)
	})
	if b.onError != nil {
		b.onError(ctx, err)
	}
}
