package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/metrics"
	"github.com/segyhp/emi-engine/internal/repository"
	"github.com/segyhp/emi-engine/internal/service"
	"github.com/segyhp/emi-engine/pkg/utils"
)

const lockKey = "emi:sweep:lock"

// ErrSweepLocked is returned when another process holds the sweep lock
var ErrSweepLocked = errors.New("sweep already running")

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lifecycle is the part of the EMI service the sweep drives
type Lifecycle interface {
	EvaluateDueDate(agreement *domain.Agreement, today time.Time) service.DueDecision
	MarkOverdue(ctx context.Context, agreement *domain.Agreement) error
	NotifyDue(ctx context.Context, agreement *domain.Agreement, decision service.DueDecision) error
}

type SweepJob struct {
	agreements repository.AgreementRepository
	lifecycle  Lifecycle
	redis      *redis.Client
	cfg        *config.Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewSweepJob(
	agreements repository.AgreementRepository,
	lifecycle Lifecycle,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *SweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepJob{
		agreements: agreements,
		lifecycle:  lifecycle,
		redis:      redisClient,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run evaluates every active agreement once. Failures of single records are
// logged and counted; only failing to load the batch fails the run.
func (j *SweepJob) Run(ctx context.Context) (*domain.SweepReport, error) {
	release, err := j.acquire(ctx)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrSweepLocked) {
			result = "skipped"
		}
		metrics.SweepRuns.WithLabelValues(result).Inc()
		return nil, err
	}
	defer release()

	start := time.Now()
	today := j.now().In(j.cfg.GetSchedulerLocation())
	report := &domain.SweepReport{StartedAt: today}

	// everything due before the end of the reminder window's last day, overdue ones included
	until := utils.StartOfDay(today).AddDate(0, 0, j.cfg.Business.ReminderWindowDays+1)
	batch, err := j.agreements.FindDueWithinWindow(ctx, time.Time{}, until, []domain.AgreementStatus{domain.AgreementStatusActive})
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	var reminded, overdue, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(j.concurrency())
	for _, agreement := range batch {
		agreement := agreement
		g.Go(func() error {
			action, err := j.process(ctx, agreement, today)
			if err != nil {
				failed.Add(1)
				metrics.SweepRecords.WithLabelValues("failed").Inc()
				j.logger.Warn("sweep record failed",
					zap.String("agreement_id", agreement.ID.String()),
					zap.String("action", action.String()),
					zap.Error(err))
				return nil
			}

			metrics.SweepRecords.WithLabelValues(action.String()).Inc()
			switch action {
			case service.DueActionRemind:
				reminded.Add(1)
			case service.DueActionMarkOverdue:
				overdue.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Evaluated = len(batch)
	report.Reminded = int(reminded.Load())
	report.MarkedOverdue = int(overdue.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)

	metrics.SweepRuns.WithLabelValues("completed").Inc()
	metrics.SweepDuration.Observe(report.Duration.Seconds())
	j.logger.Info("due date sweep finished",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("reminded", report.Reminded),
		zap.Int("marked_overdue", report.MarkedOverdue),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (j *SweepJob) process(ctx context.Context, agreement *domain.Agreement, today time.Time) (service.DueAction, error) {
	decision := j.lifecycle.EvaluateDueDate(agreement, today)

	switch decision.Action {
	case service.DueActionRemind:
		return decision.Action, j.lifecycle.NotifyDue(ctx, agreement, decision)

	case service.DueActionMarkOverdue:
		if err := j.lifecycle.MarkOverdue(ctx, agreement); err != nil {
			return decision.Action, err
		}
		return decision.Action, j.lifecycle.NotifyDue(ctx, agreement, decision)
	}

	return service.DueActionNone, nil
}

// acquire takes the cross-process run lock. Without redis the lock is a no-op.
func (j *SweepJob) acquire(ctx context.Context) (func(), error) {
	if j.redis == nil {
		return func() {}, nil
	}

	ttl := j.cfg.Scheduler.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	token := uuid.NewString()
	ok, err := j.redis.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSweepLocked
	}

	return func() {
		// the run context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, j.redis, []string{lockKey}, token).Err(); err != nil {
			j.logger.Warn("failed to release sweep lock", zap.Error(err))
		}
	}, nil
}

func (j *SweepJob) concurrency() int {
	if j.cfg.Scheduler.Concurrency > 0 {
		return j.cfg.Scheduler.Concurrency
	}
	return 1
}
