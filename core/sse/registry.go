package sse

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alltuner/vibetuner/core/logger"
)

// DefaultQueueSize is the per-subscriber buffer used when none is configured.
const DefaultQueueSize = 100

// Subscriber is a connection-scoped queue registered under one channel.
// It is owned by the streaming goroutine that created it and must be
// released with Registry.Unsubscribe.
type Subscriber struct {
	id      string
	channel string
	queue   chan Event
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Channel returns the channel the subscriber listens on.
func (s *Subscriber) Channel() string { return s.channel }

// Events returns the subscriber's receive queue.
func (s *Subscriber) Events() <-chan Event { return s.queue }

// Registry maps channel names to the subscribers currently open in this
// process. A channel key exists only while it has at least one subscriber.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	channels  map[string]map[*Subscriber]struct{}
	queueSize int
	logger    *slog.Logger
	metrics   *metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryQueueSize sets the buffer size of each subscriber queue.
func WithRegistryQueueSize(size int) RegistryOption {
	return func(r *Registry) {
		if size > 0 {
			r.queueSize = size
		}
	}
}

// WithRegistryLogger sets the logger used for drop diagnostics.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.logger = log
		}
	}
}

func withRegistryMetrics(m *metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		channels:  make(map[string]map[*Subscriber]struct{}),
		queueSize: DefaultQueueSize,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a new subscriber with a fresh bounded queue on channel.
func (r *Registry) Subscribe(channel string) (*Subscriber, error) {
	if err := ValidateChannel(channel); err != nil {
		return nil, err
	}

	sub := &Subscriber{
		id:      uuid.NewString(),
		channel: channel,
		queue:   make(chan Event, r.queueSize),
	}

	r.mu.Lock()
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[*Subscriber]struct{})
		r.channels[channel] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	r.metrics.addSubscribers(context.Background(), 1)
	return sub, nil
}

// Unsubscribe removes sub from its channel, deleting the channel key when it
// was the last subscriber. Calling it more than once is a no-op.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	set, ok := r.channels[sub.channel]
	if !ok {
		r.mu.Unlock()
		return
	}
	_, present := set[sub]
	delete(set, sub)
	if len(set) == 0 {
		delete(r.channels, sub.channel)
	}
	r.mu.Unlock()

	if present {
		r.metrics.addSubscribers(context.Background(), -1)
	}
}

// Dispatch enqueues ev to every subscriber of channel without blocking.
// A subscriber whose queue is full misses this event; the others still get it.
// Returns the number of subscribers that received the event.
func (r *Registry) Dispatch(channel string, ev Event) int {
	r.mu.RLock()
	set := r.channels[channel]
	if len(set) == 0 {
		r.mu.RUnlock()
		return 0
	}
	subs := make([]*Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range subs {
		select {
		case sub.queue <- ev:
			delivered++
		default:
			dropped++
			r.logger.Debug("subscriber queue full, event dropped",
				logger.Component("sse"),
				logger.Channel(channel),
				logger.SubscriberID(sub.id),
			)
		}
	}

	ctx := context.Background()
	r.metrics.addDelivered(ctx, channel, delivered)
	r.metrics.addDropped(ctx, channel, dropped)
	return delivered
}

// Subscribers returns the number of open subscribers on channel.
func (r *Registry) Subscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Channels returns the sorted names of channels with at least one subscriber.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
