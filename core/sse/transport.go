package sse

import "context"

// Message is a single message received from the relay bus.
type Message struct {
	Topic   string
	Payload []byte
}

// Connector opens connections to the shared publish-subscribe bus.
// Every call returns an independent connection; the bridge keeps one for
// listening and one for publishing.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// Conn is a single bus connection.
// Implementations wrap connectivity failures with ErrRelayUnavailable.
type Conn interface {
	// Publish sends payload to topic. Delivery is fire-and-forget.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe listens on every topic that starts with prefix.
	Subscribe(ctx context.Context, prefix string) (Subscription, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Subscription is an active pattern subscription.
type Subscription interface {
	// Messages returns the inbound message stream. The channel is closed when
	// the subscription ends, including when the underlying connection drops.
	Messages() <-chan Message

	// Close ends the subscription.
	Close() error
}
