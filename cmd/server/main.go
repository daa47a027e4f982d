package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/app"
	"github.com/segyhp/emi-engine/internal/auth"
	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/handler"
	"github.com/segyhp/emi-engine/pkg/logger"
)

func main() {
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

	router := handler.NewRouter(handler.Handlers{
		Health:  handler.NewHealthHandler(application.DB, application.Redis, cfg.GetHealthTimeout()),
		EMI:     handler.NewEMIHandler(application.EMI, application.Reconciliation),
		Admin:   handler.NewAdminHandler(application.EMI, application.Reconciliation, application.Sweep),
		Offline: handler.NewOfflineHandler(application.Offline),
	}, auth.NewJWTResolver(cfg.Auth), log.Named("http"))

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
