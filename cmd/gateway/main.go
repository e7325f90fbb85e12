package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/application"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := application.New()
	if err := app.Run(ctx); err != nil {
		log.Error("gateway exited with error", zap.Error(err))
		os.Exit(1)
	}
}
