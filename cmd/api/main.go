package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/app"
)

const shutdownTimeout = 15 * time.Second

// main runs the HTTP API without the CLI; SIGINT or SIGTERM drains it.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		bootstrap := zap.Must(zap.NewProduction())
		bootstrap.Error("procura api exited", zap.Error(err))
		_ = bootstrap.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	application := fx.New(app.HTTP, fx.StopTimeout(shutdownTimeout))
	if err := application.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return application.Stop(stopCtx)
}
