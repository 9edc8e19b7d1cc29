package live_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/app/live"
	"github.com/alltuner/vibetuner/core/logger"
	"github.com/alltuner/vibetuner/core/server"
	"github.com/alltuner/vibetuner/core/sse"
)

func testConfig() live.Config {
	srv := server.DefaultConfig()
	srv.Addr = "127.0.0.1:0"
	srv.ShutdownTimeout = time.Second
	return live.Config{
		Server:            srv,
		SSE:               sse.DefaultConfig(),
		AppName:           "vibetuner-test",
		Env:               "development",
		BusConnectTimeout: time.Second,
	}
}

func newTestApp(t *testing.T, cfg live.Config) *live.App {
	t.Helper()
	app, err := live.NewApp(context.Background(), live.WithConfig(cfg), live.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Service().Shutdown(context.Background()) })
	return app
}

func TestNewApp_UnsupportedBus(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SSE.BusURL = "amqp://localhost"

	_, err := live.NewApp(context.Background(), live.WithConfig(cfg), live.WithLogger(logger.Discard()))

	require.ErrorIs(t, err, live.ErrUnsupportedBus)
}

func TestNewApp_NilOptions(t *testing.T) {
	t.Parallel()

	_, err := live.NewApp(context.Background(), live.WithLogger(nil))
	require.Error(t, err)

	_, err = live.NewApp(context.Background(), live.WithService(nil))
	require.Error(t, err)
}

func TestApp_Health(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, testConfig())

	for path, body := range map[string]string{"/health/live": "ALIVE", "/health/ready": "READY"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, body, strings.TrimSpace(rec.Body.String()), path)
	}
}

func TestApp_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("invalid channel", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, testConfig())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/live/broadcast/bad%20channel", strings.NewReader("data=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		app.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("event name with a line break", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, testConfig())
		sub, err := app.Service().Registry().Subscribe("news")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		form := url.Values{"event": {"msg\nevent: forged"}, "data": {"x"}}
		req := httptest.NewRequest(http.MethodPost, "/live/broadcast/news", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		app.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sub.Events())
	})

	t.Run("reaches an open stream", func(t *testing.T) {
		t.Parallel()
		expectStreamDelivery(t, newTestApp(t, testConfig()))
	})
}

func TestNewApp_UnreachableBus(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SSE.BusURL = "redis://127.0.0.1:1/0"
	cfg.BusConnectTimeout = 200 * time.Millisecond

	app := newTestApp(t, cfg)
	assert.True(t, app.Service().Bridge().Enabled())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	expectStreamDelivery(t, app)
}

// expectStreamDelivery opens a stream on chat:room1, posts a broadcast to it
// and waits for the frame.
func expectStreamDelivery(t *testing.T, app *live.App) {
	t.Helper()
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/live/events/chat:room1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return app.Service().Registry().Subscribers("chat:room1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	post, err := http.PostForm(srv.URL+"/live/broadcast/chat:room1", url.Values{"event": {"msg"}, "data": {"hi"}})
	require.NoError(t, err)
	_ = post.Body.Close()
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for !assert.ObjectsAreEqual([]string{"event: msg", "data: hi"}, tail(got, 2)) {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			got = append(got, line)
		case <-timeout:
			t.Fatalf("event not received, got %q", got)
		}
	}
}

func tail(s []string, n int) []string {
	if len(s) < n {
		return nil
	}
	return s[len(s)-n:]
}

func TestApp_Run(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
