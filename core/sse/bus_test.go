package sse_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alltuner/vibetuner/core/sse"
)

// memBus is an in-memory pattern pub/sub shared by every connection it hands out.
type memBus struct {
	mu   sync.Mutex
	subs map[*memSub]struct{}

	down     atomic.Bool
	connects atomic.Int32
	closes   atomic.Int32
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[*memSub]struct{})}
}

func (b *memBus) Connect(context.Context) (sse.Conn, error) {
	if b.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", sse.ErrRelayUnavailable)
	}
	b.connects.Add(1)
	return &memConn{bus: b}, nil
}

// inject delivers a raw message as if another producer had published it.
func (b *memBus) inject(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if strings.HasPrefix(topic, s.prefix) {
			select {
			case s.ch <- sse.Message{Topic: topic, Payload: payload}:
			default:
			}
		}
	}
}

// drop ends every active subscription, as a lost connection would.
func (b *memBus) drop() {
	b.mu.Lock()
	subs := make([]*memSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}

func (b *memBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type memConn struct {
	bus    *memBus
	closed atomic.Bool
}

func (c *memConn) Publish(_ context.Context, topic string, payload []byte) error {
	if c.closed.Load() || c.bus.down.Load() {
		return fmt.Errorf("%w: connection reset", sse.ErrRelayUnavailable)
	}
	c.bus.inject(topic, payload)
	return nil
}

func (c *memConn) Subscribe(_ context.Context, prefix string) (sse.Subscription, error) {
	if c.closed.Load() || c.bus.down.Load() {
		return nil, fmt.Errorf("%w: connection reset", sse.ErrRelayUnavailable)
	}
	s := &memSub{bus: c.bus, prefix: prefix, ch: make(chan sse.Message, 64)}
	c.bus.mu.Lock()
	c.bus.subs[s] = struct{}{}
	c.bus.mu.Unlock()
	return s, nil
}

func (c *memConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.bus.closes.Add(1)
	}
	return nil
}

type memSub struct {
	bus    *memBus
	prefix string
	ch     chan sse.Message
	once   sync.Once
}

func (s *memSub) Messages() <-chan sse.Message { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		close(s.ch)
		s.bus.mu.Unlock()
	})
	return nil
}

// recorder collects events a Dispatcher receives.
type recorder struct {
	mu     sync.Mutex
	events map[string][]sse.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]sse.Event)}
}

func (r *recorder) Dispatch(channel string, ev sse.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[channel] = append(r.events[channel], ev)
	return 1
}

func (r *recorder) get(channel string) []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sse.Event(nil), r.events[channel]...)
}
