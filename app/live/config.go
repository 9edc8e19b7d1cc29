package live

import (
	"time"

	"github.com/alltuner/vibetuner/core/server"
	"github.com/alltuner/vibetuner/core/sse"
)

type Config struct {
	Server server.Config
	SSE    sse.Config

	AppName  string `env:"APP_NAME" envDefault:"vibetuner"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// BusConnectTimeout bounds the startup connection check against the bus.
	BusConnectTimeout time.Duration `env:"SSE_BUS_CONNECT_TIMEOUT" envDefault:"10s"`
}
