package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alltuner/vibetuner/core/sse"
	redisdb "github.com/alltuner/vibetuner/integration/database/redis"
)

const defaultConnectTimeout = 10 * time.Second

// Connector opens Redis connections for the sse relay bridge.
// Every Connect call creates its own client.
type Connector struct {
	url     string
	timeout time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithConnectTimeout bounds how long a single Connect may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a Connector for the given redis:// or rediss:// URL.
func New(url string, opts ...Option) *Connector {
	c := &Connector{url: url, timeout: defaultConnectTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect implements sse.Connector. Retries are left to the bridge.
func (c *Connector) Connect(ctx context.Context) (sse.Conn, error) {
	client, err := redisdb.Connect(ctx, redisdb.Config{
		ConnectionURL:  c.url,
		RetryAttempts:  1,
		ConnectTimeout: c.timeout,
	})
	if err != nil {
		if errors.Is(err, redisdb.ErrEmptyConnectionURL) || errors.Is(err, redisdb.ErrFailedToParseRedisConnString) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", sse.ErrRelayUnavailable, err)
	}
	return &conn{client: client}, nil
}

type conn struct {
	client    *redis.Client
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte) error {
	return classify(c.client.Publish(ctx, topic, payload).Err())
}

func (c *conn) Subscribe(ctx context.Context, prefix string) (sse.Subscription, error) {
	ps := c.client.PSubscribe(ctx, escapePattern(prefix)+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, classify(err)
	}

	s := &subscription{
		ps:   ps,
		out:  make(chan sse.Message),
		done: make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.client.Close() })
	return c.closeErr
}

type subscription struct {
	ps        *redis.PubSub
	out       chan sse.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) forward() {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- sse.Message{Topic: m.Channel, Payload: []byte(m.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan sse.Message { return s.out }

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// classify keeps Redis server replies as they are and marks everything else
// as a connectivity failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return err
	}
	return fmt.Errorf("%w: %w", sse.ErrRelayUnavailable, err)
}

// escapePattern quotes glob metacharacters so that the prefix matches
// literally in PSUBSCRIBE.
func escapePattern(prefix string) string {
	if !strings.ContainsAny(prefix, `*?[]\`) {
		return prefix
	}
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
