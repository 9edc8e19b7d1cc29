package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alltuner/vibetuner/core/sse"
)

// DefaultChannel is the PostgreSQL notification channel shared by all topics.
const DefaultChannel = "vibetuner_sse"

// MaxPayloadSize is the largest NOTIFY payload PostgreSQL accepts in its
// default build. The envelope counts against it.
const MaxPayloadSize = 7999

// ErrPayloadTooLarge is returned by Publish when the encoded envelope does not
// fit into a single notification.
var ErrPayloadTooLarge = errors.New("pg bus: payload exceeds notification size limit")

type envelope struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Connector opens LISTEN/NOTIFY connections for the sse relay bridge.
type Connector struct {
	url     string
	channel string
}

// Option configures a Connector.
type Option func(*Connector)

// WithChannel sets the notification channel. Empty values are ignored.
func WithChannel(name string) Option {
	return func(c *Connector) {
		if name != "" {
			c.channel = name
		}
	}
}

// New returns a Connector for the given postgres:// URL.
func New(url string, opts ...Option) *Connector {
	c := &Connector{url: url, channel: DefaultChannel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect implements sse.Connector. Each call opens a dedicated connection.
func (c *Connector) Connect(ctx context.Context) (sse.Conn, error) {
	cfg, err := pgx.ParseConfig(c.url)
	if err != nil {
		return nil, fmt.Errorf("pg bus: parse config: %w", err)
	}
	pc, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sse.ErrRelayUnavailable, err)
	}
	return &conn{pc: pc, channel: c.channel}, nil
}

// conn serializes access to the underlying pgx.Conn. A listening connection
// holds the lock while waiting for notifications, so the bridge publishes on
// a separate one.
type conn struct {
	mu      sync.Mutex
	pc      *pgx.Conn
	channel string
	closed  bool

	lmu      sync.Mutex
	listener *subscription
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte) error {
	body, err := json.Marshal(envelope{Topic: topic, Payload: string(payload)})
	if err != nil {
		return fmt.Errorf("pg bus: encode envelope: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", sse.ErrRelayUnavailable)
	}
	_, err = c.pc.Exec(ctx, "SELECT pg_notify($1, $2)", c.channel, string(body))
	return classify(err)
}

func (c *conn) Subscribe(ctx context.Context, prefix string) (sse.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: connection closed", sse.ErrRelayUnavailable)
	}
	_, err := c.pc.Exec(ctx, "LISTEN "+pgx.Identifier{c.channel}.Sanitize())
	c.mu.Unlock()
	if err != nil {
		return nil, classify(err)
	}

	waitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &subscription{
		conn:   c,
		prefix: prefix,
		out:    make(chan sse.Message),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.lmu.Lock()
	c.listener = s
	c.lmu.Unlock()
	go s.wait(waitCtx)
	return s, nil
}

func (c *conn) Close() error {
	c.lmu.Lock()
	listener := c.listener
	c.lmu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pc.Close(context.Background())
}

type subscription struct {
	conn   *conn
	prefix string
	out    chan sse.Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) wait(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	for {
		n, err := s.conn.pc.WaitForNotification(ctx)
		if err != nil {
			return
		}
		msg, ok := s.decode(n.Payload)
		if !ok {
			continue
		}
		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// decode unwraps an envelope. Topics outside the prefix belong to another
// namespace and are skipped; undecodable envelopes are forwarded with an
// empty topic so that the bridge reports them.
func (s *subscription) decode(raw string) (sse.Message, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return sse.Message{Payload: []byte(raw)}, true
	}
	if !strings.HasPrefix(env.Topic, s.prefix) {
		return sse.Message{}, false
	}
	return sse.Message{Topic: env.Topic, Payload: []byte(env.Payload)}, true
}

func (s *subscription) Messages() <-chan sse.Message { return s.out }

// Close stops waiting for notifications. The connection stays open and is
// released by its own Close.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// classify keeps server-side errors as they are and marks everything else
// as a connectivity failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	return fmt.Errorf("%w: %w", sse.ErrRelayUnavailable, err)
}
