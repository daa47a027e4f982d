// Package catalog reads the EMI configuration of courses.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/pkg/cache"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

const policyKeyPrefix = "emi:course-policy:"

type Catalog struct {
	db     *sqlx.DB
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a catalog. cache may be nil, in which case every lookup hits the database.
func New(db *sqlx.DB, c *cache.RedisCache, ttl time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{db: db, cache: c, ttl: ttl, logger: logger}
}

// GetCourseEMIPolicy returns the EMI policy of a course, served from redis when cached
func (c *Catalog) GetCourseEMIPolicy(ctx context.Context, courseID string) (*domain.CourseEMIPolicy, error) {
	policy, err := cache.GetOrSet(ctx, c.cache, PolicyKey(courseID), c.ttl, func() (*domain.CourseEMIPolicy, error) {
		return c.loadPolicy(ctx, courseID)
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Invalidate drops the cached policy of a course
func (c *Catalog) Invalidate(ctx context.Context, courseID string) error {
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Delete(ctx, PolicyKey(courseID)); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

func (c *Catalog) loadPolicy(ctx context.Context, courseID string) (*domain.CourseEMIPolicy, error) {
	query := `
		SELECT course_id, title, emi_enabled, price, min_installments, max_installments,
		       processing_fee_percent, minimum_installment_amount
		FROM course_emi_policies
		WHERE course_id = $1
	`

	var policy domain.CourseEMIPolicy
	if err := c.db.GetContext(ctx, &policy, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapCourseNotFound(courseID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	optionsQuery := `
		SELECT months, monthly_amount
		FROM course_emi_options
		WHERE course_id = $1
		ORDER BY months
	`

	policy.Options = []domain.EMIOption{}
	if err := c.db.SelectContext(ctx, &policy.Options, optionsQuery, courseID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	c.logger.Debug("course policy loaded", zap.String("course_id", courseID), zap.Int("options", len(policy.Options)))

	return &policy, nil
}

func PolicyKey(courseID string) string {
	return policyKeyPrefix + courseID
}
