package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/core/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output with attributes", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf), logger.WithAttr(slog.String("app", "live")))

		log.Info("relay started", logger.Component("sse"), logger.Topic("app:sse:*"))

		rec := decode(t, &buf)
		assert.Equal(t, "relay started", rec["msg"])
		assert.Equal(t, "live", rec["app"])
		assert.Equal(t, "sse", rec["component"])
		assert.Equal(t, "app:sse:*", rec["topic"])
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))

		log.Info("hidden")
		assert.Empty(t, buf.String())

		log.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("production preset", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithProduction("vibetuner"), logger.WithOutput(&buf))

		log.Debug("hidden")
		log.Info("shown")

		rec := decode(t, &buf)
		assert.Equal(t, "vibetuner", rec["service"])
		assert.Equal(t, "production", rec["env"])
	})

	t.Run("development preset logs debug as text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithDevelopment("vibetuner"), logger.WithOutput(&buf))

		log.Debug("verbose")

		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "env=development")
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{in: "debug", want: slog.LevelDebug, ok: true},
		{in: "WARN", want: slog.LevelWarn, ok: true},
		{in: "error", want: slog.LevelError, ok: true},
		{in: "", want: slog.LevelInfo, ok: false},
		{in: "loud", want: slog.LevelInfo, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := logger.ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestAttributeHelpers(t *testing.T) {
	t.Parallel()

	t.Run("empty values are dropped", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf))

		log.Info("msg", logger.Error(nil), logger.Channel(""), logger.Topic(""), logger.SubscriberID(""), logger.Key("k", nil))

		rec := decode(t, &buf)
		for _, key := range []string{"error", "channel", "topic", "subscriber_id", "k"} {
			assert.NotContains(t, rec, key)
		}
	})

	t.Run("errors keep order", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf))

		log.Info("msg", logger.Errors(errors.New("a"), nil, errors.New("c")))

		rec := decode(t, &buf)
		errs, ok := rec["errors"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a", errs["0"])
		assert.Equal(t, "c", errs["2"])
		assert.NotContains(t, errs, "1")
	})

	t.Run("stream attributes", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf))

		log.Info("msg", logger.Channel("chat:room1"), logger.SubscriberID("abc"), logger.Count("local_subscribers", 2), logger.RetryCount(3))

		rec := decode(t, &buf)
		assert.Equal(t, "chat:room1", rec["channel"])
		assert.Equal(t, "abc", rec["subscriber_id"])
		assert.EqualValues(t, 2, rec["local_subscribers"])
		assert.EqualValues(t, 3, rec["retry_count"])
	})
}
