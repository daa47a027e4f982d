package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/app"
	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/scheduler"
	"github.com/segyhp/emi-engine/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.Must(cfg.Logging)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() { _ = application.Close() }()

	if *once {
		report, err := application.Sweep.Run(context.Background())
		if err != nil {
			log.Fatal("sweep failed", zap.Error(err))
		}
		log.Info("sweep done", zap.Any("report", report))
		return
	}

	s, err := scheduler.New(cfg, application.Sweep, log.Named("scheduler"))
	if err != nil {
		log.Fatal("failed to schedule sweep", zap.Error(err))
	}
	s.Start()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down scheduler")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		log.Error("sweep still running at shutdown", zap.Error(err))
	}
}
