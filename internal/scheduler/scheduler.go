// Package scheduler runs the daily due-date sweep.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/config"
)

// Scheduler owns the cron runner of the sweep. It is built and started by the
// composition root and stopped on shutdown.
type Scheduler struct {
	cron   *cron.Cron
	job    *SweepJob
	cfg    *config.Config
	logger *zap.Logger
}

func New(cfg *config.Config, job *SweepJob, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	s := &Scheduler{cron: c, job: job, cfg: cfg, logger: logger}
	if _, err := c.AddFunc(cfg.Scheduler.SweepSpec, s.runOnce); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.cfg.Scheduler.SweepSpec),
		zap.String("timezone", s.cfg.Scheduler.Timezone))
}

// Stop waits for a running sweep to finish, or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if ttl := s.cfg.Scheduler.LockTTL; ttl > 0 {
		// a run never outlives its lock
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ttl)
		defer cancel()
	}

	if _, err := s.job.Run(ctx); err != nil {
		if errors.Is(err, ErrSweepLocked) {
			s.logger.Info("sweep skipped, another run holds the lock")
			return
		}
		s.logger.Error("sweep failed", zap.Error(err))
	}
}
