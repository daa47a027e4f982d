// Package app wires the EMI engine's dependencies for the cmd entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/catalog"
	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/directory"
	"github.com/segyhp/emi-engine/internal/gateway"
	"github.com/segyhp/emi-engine/internal/notify"
	"github.com/segyhp/emi-engine/internal/repository"
	"github.com/segyhp/emi-engine/internal/scheduler"
	"github.com/segyhp/emi-engine/internal/service"
	"github.com/segyhp/emi-engine/pkg/cache"
	"github.com/segyhp/emi-engine/pkg/database"
)

// App holds the long lived components shared by the server and the scheduler
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Agreements     repository.AgreementRepository
	EMI            *service.EMIService
	Reconciliation *service.ReconciliationService
	Offline        *service.OfflineService
	Sweep          *scheduler.SweepJob
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// redis is optional at runtime: the catalog falls back to the database
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, course policies will not be cached", zap.Error(err))
	}

	agreementRepo := repository.NewAgreementRepository(db)
	offlineRepo := repository.NewOfflineEMIRepository(db)

	courses := catalog.New(db, cache.NewRedisCache(redisClient, logger), cfg.Business.CourseCacheTTL, logger)
	notifier := notify.New(cfg.Notification, directory.New(db), logger.Named("notify"))
	verifier := gateway.NewMidtransVerifier(cfg.Gateway, logger.Named("gateway"))

	emi := service.NewEMIService(agreementRepo, courses, notifier, cfg, logger.Named("emi"))

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             db,
		Redis:          redisClient,
		Agreements:     agreementRepo,
		EMI:            emi,
		Reconciliation: service.NewReconciliationService(emi, verifier, logger.Named("reconciliation")),
		Offline:        service.NewOfflineService(offlineRepo, logger.Named("offline")),
		Sweep:          scheduler.NewSweepJob(agreementRepo, emi, redisClient, cfg, logger.Named("sweep")),
	}, nil
}

// Close releases the database pool and the redis client
func (a *App) Close() error {
	return errors.Join(a.Redis.Close(), a.DB.Close())
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		return redis.NewClient(opts), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
