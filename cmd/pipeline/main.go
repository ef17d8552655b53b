package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go-workbook-pipeline/internal/api"
	"go-workbook-pipeline/internal/app"
	"go-workbook-pipeline/internal/config"
	"go-workbook-pipeline/pkg/router"
)

func main() {
	configPath := flag.String("config", ".", "config file or directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}
	defer a.Close()

	if err := router.Serve(ctx, cfg.Server.Addr, api.NewServer(a)); err != nil {
		log.Printf("server error: %v", err)
	}
}
