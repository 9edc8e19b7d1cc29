package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/core/sse"
	"github.com/alltuner/vibetuner/integration/internal/containertest"
	"github.com/alltuner/vibetuner/integration/pubsub/redis"
)

const waitFor = 5 * time.Second

func TestConnector_Unreachable(t *testing.T) {
	t.Parallel()

	c := redis.New("redis://127.0.0.1:1/0", redis.WithConnectTimeout(200*time.Millisecond))
	conn, err := c.Connect(context.Background())

	require.ErrorIs(t, err, sse.ErrRelayUnavailable)
	assert.Nil(t, conn)
}

func TestConnector_InvalidURL(t *testing.T) {
	t.Parallel()

	conn, err := redis.New("mysql://localhost").Connect(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, sse.ErrRelayUnavailable)
	assert.Nil(t, conn)
}

func TestConnector_Container(t *testing.T) {
	connector := redis.New(containertest.Redis(t))
	ctx := context.Background()

	t.Run("prefix subscription", func(t *testing.T) {
		listener, err := connector.Connect(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = listener.Close() })
		publisher, err := connector.Connect(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = publisher.Close() })

		sub, err := listener.Subscribe(ctx, "app[1]:sse:")
		require.NoError(t, err)

		require.NoError(t, publisher.Publish(ctx, "app1:sse:news", []byte("wrong namespace")))
		require.NoError(t, publisher.Publish(ctx, "app[1]:sse:news", []byte(`{"event":"x"}`)))

		select {
		case msg := <-sub.Messages():
			assert.Equal(t, sse.Message{Topic: "app[1]:sse:news", Payload: []byte(`{"event":"x"}`)}, msg)
		case <-time.After(waitFor):
			t.Fatal("no message received")
		}

		require.NoError(t, sub.Close())
		_, open := <-sub.Messages()
		assert.False(t, open)
	})

	t.Run("closed connection reports unavailable", func(t *testing.T) {
		conn, err := connector.Connect(ctx)
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		require.NoError(t, conn.Close())

		err = conn.Publish(ctx, "sse:news", []byte("{}"))
		assert.ErrorIs(t, err, sse.ErrRelayUnavailable)
	})

	t.Run("relays between services", func(t *testing.T) {
		a := sse.New(sse.WithConnector(connector), sse.WithNamespace("it:"))
		b := sse.New(sse.WithConnector(connector), sse.WithNamespace("it:"))
		t.Cleanup(func() {
			_ = a.Shutdown(context.Background())
			_ = b.Shutdown(context.Background())
		})

		sub, err := b.Registry().Subscribe("chat:room1")
		require.NoError(t, err)
		b.Bridge().Start(ctx)
		require.True(t, b.Bridge().Running())

		require.NoError(t, a.Broadcast(ctx, "chat:room1", sse.WithEventName("msg"), sse.WithData("hi")))

		select {
		case ev := <-sub.Events():
			assert.Equal(t, sse.Event{Event: "msg", Data: "hi"}, ev)
		case <-time.After(waitFor):
			t.Fatal("event was not relayed")
		}
	})
}
