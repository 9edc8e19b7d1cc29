package sse_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/core/sse"
)

func TestRegistry_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid channel", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()

		sub, err := r.Subscribe("bad channel")
		require.ErrorIs(t, err, sse.ErrInvalidChannelName)
		assert.Nil(t, sub)
		assert.Empty(t, r.Channels())
	})

	t.Run("assigns unique ids", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()

		a, err := r.Subscribe("news")
		require.NoError(t, err)
		b, err := r.Subscribe("news")
		require.NoError(t, err)

		assert.NotEqual(t, a.ID(), b.ID())
		assert.Equal(t, "news", a.Channel())
		assert.Equal(t, 2, r.Subscribers("news"))
	})
}

func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	t.Run("delivers payload unmodified", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()
		sub, err := r.Subscribe("chat:room1")
		require.NoError(t, err)

		want := sse.Event{Event: "msg", Data: "<p>hi\nthere</p>"}
		n := r.Dispatch("chat:room1", want)

		assert.Equal(t, 1, n)
		require.Len(t, sub.Events(), 1)
		assert.Equal(t, want, <-sub.Events())
	})

	t.Run("no subscribers is a no-op", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()

		n := r.Dispatch("nobody", sse.Event{Event: "x"})

		assert.Zero(t, n)
		assert.Empty(t, r.Channels())
		assert.Zero(t, r.Subscribers("nobody"))
	})

	t.Run("other channels are not affected", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()
		a, _ := r.Subscribe("a")
		b, _ := r.Subscribe("b")

		r.Dispatch("a", sse.Event{Event: "only-a"})

		assert.Len(t, a.Events(), 1)
		assert.Empty(t, b.Events())
	})

	t.Run("full queue drops only for that subscriber", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry(sse.WithRegistryQueueSize(1))
		slow, err := r.Subscribe("feed")
		require.NoError(t, err)
		fast, err := r.Subscribe("feed")
		require.NoError(t, err)

		assert.Equal(t, 2, r.Dispatch("feed", sse.Event{Data: "1"}))
		<-fast.Events()

		assert.Equal(t, 1, r.Dispatch("feed", sse.Event{Data: "2"}))

		assert.Equal(t, sse.Event{Data: "1"}, <-slow.Events())
		assert.Empty(t, slow.Events())
		assert.Equal(t, sse.Event{Data: "2"}, <-fast.Events())
	})
}

func TestRegistry_Unsubscribe(t *testing.T) {
	t.Parallel()

	t.Run("last subscriber removes channel key", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()
		a, _ := r.Subscribe("room")
		b, _ := r.Subscribe("room")

		r.Unsubscribe(a)
		assert.Equal(t, []string{"room"}, r.Channels())

		r.Unsubscribe(b)
		assert.Empty(t, r.Channels())
		assert.Zero(t, r.Subscribers("room"))
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		r := sse.NewRegistry()
		a, _ := r.Subscribe("room")
		b, _ := r.Subscribe("room")

		r.Unsubscribe(a)
		r.Unsubscribe(a)
		r.Unsubscribe(nil)

		assert.Equal(t, 1, r.Subscribers("room"))
		assert.Equal(t, 1, r.Dispatch("room", sse.Event{}))
		assert.Len(t, b.Events(), 1)
	})
}

func TestRegistry_Channels(t *testing.T) {
	t.Parallel()
	r := sse.NewRegistry()
	for _, ch := range []string{"b", "c", "a"} {
		_, err := r.Subscribe(ch)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "c"}, r.Channels())
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()
	r := sse.NewRegistry(sse.WithRegistryQueueSize(4))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := fmt.Sprintf("ch-%d", i%4)
			for range 50 {
				sub, err := r.Subscribe(ch)
				if err != nil {
					t.Error(err)
					return
				}
				r.Unsubscribe(sub)
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				r.Dispatch(fmt.Sprintf("ch-%d", i%4), sse.Event{Data: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, r.Channels())
}
