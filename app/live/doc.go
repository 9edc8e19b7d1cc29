// Package live is a ready-to-run application serving live events.
//
// It reads its configuration from the environment (see Config), opens the
// relay bus named by SSE_BUS_URL, and serves:
//
//	GET  /health/live
//	GET  /health/ready
//	GET  /live/events/{channel}
//	POST /live/broadcast/{channel}
//
// Usage:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	app, err := live.NewApp(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package live
