package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/metrics"
)

const (
	defaultRetentionDays = 3
	defaultReapBatchSize = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type temporaryKeyReader interface {
	ListTemporaryBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ArtKey, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error)
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
}

type mediaCascader interface {
	DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error
}

// ArtKeyReaperJobParams configure the provisional Art Key cleanup job.
type ArtKeyReaperJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repo          temporaryKeyReader
	Media         mediaCascader
	Metrics       *metrics.CronJobMetrics
	RetentionDays int
	BatchSize     int
}

// NewArtKeyReaperJob builds the cron job that deletes abandoned provisional keys.
func NewArtKeyReaperJob(params ArtKeyReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("art key repository required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media cascader required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReapBatchSize
	}
	return &artKeyReaperJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repo,
		media:     params.Media,
		metrics:   params.Metrics,
		retention: time.Duration(retention) * 24 * time.Hour,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type artKeyReaperJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      temporaryKeyReader
	media     mediaCascader
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *artKeyReaperJob) Name() string { return "artkey-reaper" }

func (j *artKeyReaperJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	candidates, err := j.repo.ListTemporaryBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query abandoned provisional keys: %w", err)
	}

	var errs []error
	reaped := 0
	for _, candidate := range candidates {
		deleted, err := j.reapOne(ctx, candidate.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reap art key %s: %w", candidate.ID, err))
			continue
		}
		if deleted {
			reaped++
		}
	}
	j.metrics.AddReaped(j.Name(), reaped)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"reaped":     reaped,
		"cutoff":     cutoff,
	})
	j.logg.Info(logCtx, "provisional art key reap loop complete")
	return multierr.Combine(errs...)
}

// reapOne re-checks eligibility inside the transaction so an attach that
// lands between the listing and the delete keeps the entity alive.
func (j *artKeyReaperJob) reapOne(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := j.repo.FindByIDWithTx(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !key.IsTemporary || key.IsAdminProtected {
			return nil
		}
		if err := j.media.DeleteForArtKey(ctx, tx, key.ID); err != nil {
			return fmt.Errorf("cascade media: %w", err)
		}
		if err := j.repo.DeleteWithTx(tx, key.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
