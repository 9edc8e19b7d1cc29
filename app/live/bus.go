package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alltuner/vibetuner/core/logger"
	"github.com/alltuner/vibetuner/core/sse"
	pgdb "github.com/alltuner/vibetuner/integration/database/pg"
	redisdb "github.com/alltuner/vibetuner/integration/database/redis"
	pgbus "github.com/alltuner/vibetuner/integration/pubsub/pg"
	redisbus "github.com/alltuner/vibetuner/integration/pubsub/redis"
)

// ErrUnsupportedBus is returned for bus URLs with an unknown scheme.
var ErrUnsupportedBus = errors.New("unsupported sse bus url scheme")

// bus is the relay connector together with the readiness probe and the
// cleanup for the client backing that probe.
type bus struct {
	connector sse.Connector
	check     func(context.Context) error
	close     func()
}

// openBus picks the relay implementation from the URL scheme. An empty URL
// yields a local-only setup. An unreachable bus is not fatal: the app boots,
// readiness reports the bus as down and the relay reconnects on its own.
func openBus(ctx context.Context, log *slog.Logger, cfg sse.Config, timeout time.Duration) (*bus, error) {
	if cfg.BusURL == "" {
		return &bus{close: func() {}}, nil
	}

	u, err := url.Parse(cfg.BusURL)
	if err != nil {
		return nil, fmt.Errorf("parse sse bus url: %w", err)
	}

	var b *bus
	switch u.Scheme {
	case "redis", "rediss":
		client, err := redisdb.Open(redisdb.Config{ConnectionURL: cfg.BusURL})
		if err != nil {
			return nil, err
		}
		b = &bus{
			connector: redisbus.New(cfg.BusURL, redisbus.WithConnectTimeout(timeout)),
			check:     redisdb.Healthcheck(client),
			close:     func() { _ = client.Close() },
		}

	case "postgres", "postgresql":
		pool, err := pgdb.Open(ctx, pgdb.Config{
			ConnectionString: cfg.BusURL,
			MaxOpenConns:     2,
			MaxIdleConns:     1,
		})
		if err != nil {
			return nil, err
		}
		b = &bus{
			connector: pgbus.New(cfg.BusURL, pgbus.WithChannel(cfg.PGChannel)),
			check:     pgdb.Healthcheck(pool),
			close:     pool.Close,
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBus, u.Scheme)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := b.check(ctx); err != nil {
		log.WarnContext(ctx, "sse bus unreachable, relaying stays off until it recovers",
			logger.Component("sse"),
			logger.Key("scheme", u.Scheme),
			logger.Error(err),
		)
	}
	return b, nil
}
