package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alltuner/vibetuner/app/live"
	"github.com/alltuner/vibetuner/core/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := live.NewApp(ctx)
	if err != nil {
		slog.Error("failed to initialize app", logger.Error(err))
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		slog.Error("app stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
