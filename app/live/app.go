package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/alltuner/vibetuner/core/config"
	"github.com/alltuner/vibetuner/core/logger"
	"github.com/alltuner/vibetuner/core/router"
	"github.com/alltuner/vibetuner/core/server"
	"github.com/alltuner/vibetuner/core/sse"
)

type App struct {
	config  Config
	router  *chi.Mux
	server  *server.Server
	sse     *sse.Service
	bus     *bus
	logger  *slog.Logger
	hasConf bool
}

type AppOption func(*App) error

// NewApp wires configuration, logging, the sse service and its relay bus,
// the router and the HTTP server. Configuration is read from the
// environment unless WithConfig is given.
func NewApp(ctx context.Context, opts ...AppOption) (*App, error) {
	app := &App{}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if !app.hasConf {
		if err := config.Load(&app.config); err != nil {
			return nil, err
		}
	}
	if app.logger == nil {
		app.logger = logger.ForEnv(app.config.Env, app.config.AppName, app.config.LogLevel)
	}

	b, err := openBus(ctx, app.logger, app.config.SSE, app.config.BusConnectTimeout)
	if err != nil {
		return nil, err
	}
	app.bus = b

	if app.sse == nil {
		svcOpts := []sse.Option{sse.WithLogger(app.logger)}
		if b.connector != nil {
			svcOpts = append(svcOpts, sse.WithConnector(b.connector))
		}
		app.sse = sse.NewFromConfig(app.config.SSE, svcOpts...)
	}

	if app.router == nil {
		app.router = router.New(router.WithLogger(app.logger), router.WithRequestLogging(0))
	}
	app.routes()

	if app.server == nil {
		s, err := server.NewFromConfig(app.config.Server,
			server.WithLogger(app.logger),
			server.WithShutdownHook(app.sse.Shutdown),
		)
		if err != nil {
			b.close()
			return nil, err
		}
		app.server = s
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.router }

// Service returns the live-event service.
func (a *App) Service() *sse.Service { return a.sse }

// Run serves HTTP until ctx is canceled, then shuts the server down and
// releases the bus clients.
func (a *App) Run(ctx context.Context) error {
	defer a.bus.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(a.server.Run(ctx, a.router))

	a.logger.InfoContext(ctx, "live events app starting",
		logger.Key("addr", a.config.Server.Addr),
		logger.Key("relay", a.sse.Bridge().Enabled()),
	)
	return g.Wait()
}

func WithConfig(cfg Config) AppOption {
	return func(app *App) error {
		app.config = cfg
		app.hasConf = true
		return nil
	}
}

func WithLogger(logger *slog.Logger) AppOption {
	return func(app *App) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		app.logger = logger
		return nil
	}
}

func WithRouter(router *chi.Mux) AppOption {
	return func(app *App) error {
		if router == nil {
			return errors.New("router cannot be nil")
		}
		app.router = router
		return nil
	}
}

func WithServer(server *server.Server) AppOption {
	return func(app *App) error {
		if server == nil {
			return errors.New("server cannot be nil")
		}
		app.server = server
		return nil
	}
}

func WithService(svc *sse.Service) AppOption {
	return func(app *App) error {
		if svc == nil {
			return errors.New("sse service cannot be nil")
		}
		app.sse = svc
		return nil
	}
}
