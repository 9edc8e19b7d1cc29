package server_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/core/config"
	"github.com/alltuner/vibetuner/core/server"
)

func TestConfig_Env(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("SERVER_READ_HEADER_TIMEOUT", "250ms")

	var cfg server.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadHeaderTimeout)
	assert.Zero(t, cfg.WriteTimeout, "event streams need an unbounded write timeout")
	assert.Equal(t, server.DefaultConfig().WriteTimeout, cfg.WriteTimeout)
}

func TestNewFromConfig_RequiresAddress(t *testing.T) {
	t.Parallel()

	srv, err := server.NewFromConfig(server.Config{})

	require.ErrorIs(t, err, server.ErrMissingAddress)
	assert.Nil(t, srv)
}

func TestNewFromConfig_ReadHeaderTimeout(t *testing.T) {
	t.Parallel()

	cfg := server.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ReadHeaderTimeout = 50 * time.Millisecond
	srv, err := server.NewFromConfig(cfg)
	require.NoError(t, err)
	url, _, _ := startServer(t, srv, http.NotFoundHandler())

	conn, err := net.Dial("tcp", url[len("http://"):])
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Headers never finish; the server must hang up on its own.
	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\nHost: example\r\n")
	require.NoError(t, err)

	began := time.Now()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadAll(conn)

	require.NoError(t, err, "server should close the connection before the client deadline")
	assert.Less(t, time.Since(began), time.Second)
}

func TestNewFromConfig_WriteTimeout(t *testing.T) {
	t.Parallel()

	const chunks = 3
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := range chunks {
			if i > 0 {
				time.Sleep(150 * time.Millisecond)
			}
			_, _ = fmt.Fprintf(w, "%d\n", i)
			w.(http.Flusher).Flush()
		}
	})

	tests := []struct {
		name         string
		writeTimeout time.Duration
		complete     bool
	}{
		{name: "zero keeps long streams open", writeTimeout: 0, complete: true},
		{name: "positive value cuts long streams", writeTimeout: 100 * time.Millisecond, complete: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := server.DefaultConfig()
			cfg.Addr = "127.0.0.1:0"
			cfg.WriteTimeout = tt.writeTimeout
			srv, err := server.NewFromConfig(cfg)
			require.NoError(t, err)
			url, _, _ := startServer(t, srv, stream)

			resp, err := http.Get(url)
			require.NoError(t, err)
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			if tt.complete {
				require.NoError(t, readErr)
				assert.Equal(t, "0\n1\n2\n", string(body))
			} else {
				assert.NotEqual(t, "0\n1\n2\n", string(body))
			}
		})
	}
}
