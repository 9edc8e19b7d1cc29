// Package server provides an HTTP server with graceful shutdown and defaults
// suited to long-lived streaming responses. It wraps the standard http.Server
// with functional options and errgroup-friendly lifecycle management.
//
// # Basic Usage
//
//	srv := server.New(":8080",
//		server.WithLogger(log),
//		server.WithShutdownHook(events.Shutdown),
//	)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, router))
//	if err := g.Wait(); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// # Streaming
//
// Event streams never finish on their own, so the defaults differ from a
// plain request/response server:
//
//   - WriteTimeout is zero; a non-zero value would cut every stream off.
//   - Request contexts derive from a base context that Stop cancels after
//     running the shutdown hooks, so streaming handlers return and
//     http.Server.Shutdown can drain connections within the timeout.
//
// # Configuration
//
// Config reads SERVER_* environment variables through core/config:
//
//	var cfg server.Config
//	config.MustLoad(&cfg)
//	srv, err := server.NewFromConfig(cfg, server.WithLogger(log))
package server
