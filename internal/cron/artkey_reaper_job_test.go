package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeReaperRepo struct {
	rows      map[uuid.UUID]*models.ArtKey
	afterList func()
}

func (f *fakeReaperRepo) ListTemporaryBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ArtKey, error) {
	var out []models.ArtKey
	for _, row := range f.rows {
		if !row.IsTemporary || row.IsAdminProtected {
			continue
		}
		if !row.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *row)
		if len(out) == limit {
			break
		}
	}
	if f.afterList != nil {
		f.afterList()
	}
	return out, nil
}

func (f *fakeReaperRepo) FindByIDWithTx(_ *gorm.DB, id uuid.UUID) (*models.ArtKey, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeReaperRepo) DeleteWithTx(_ *gorm.DB, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

type fakeReaperCascader struct {
	cascaded []uuid.UUID
}

func (f *fakeReaperCascader) DeleteForArtKey(_ context.Context, _ *gorm.DB, artKeyID uuid.UUID) error {
	f.cascaded = append(f.cascaded, artKeyID)
	return nil
}

type reaperJobTestHelper struct {
	job      *artKeyReaperJob
	repo     *fakeReaperRepo
	cascader *fakeReaperCascader
}

func newReaperJobTest(t *testing.T) *reaperJobTestHelper {
	t.Helper()
	repo := &fakeReaperRepo{rows: map[uuid.UUID]*models.ArtKey{}}
	cascader := &fakeReaperCascader{}
	jobIface, err := NewArtKeyReaperJob(ArtKeyReaperJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     fakeTxRunner{},
		Repo:   repo,
		Media:  cascader,
	})
	if err != nil {
		t.Fatalf("NewArtKeyReaperJob: %v", err)
	}
	job, ok := jobIface.(*artKeyReaperJob)
	if !ok {
		t.Fatalf("unexpected job type %T", jobIface)
	}
	return &reaperJobTestHelper{job: job, repo: repo, cascader: cascader}
}

func (h *reaperJobTestHelper) seed(age time.Duration, temporary, protected bool, now time.Time) uuid.UUID {
	id := uuid.New()
	h.repo.rows[id] = &models.ArtKey{
		ID:               id,
		Slug:             "ak-" + id.String()[:10],
		IsTemporary:      temporary,
		IsAdminProtected: protected,
		CreatedAt:        now.Add(-age),
	}
	return id
}

func TestArtKeyReaperDeletesOnlyStaleProvisionalKeys(t *testing.T) {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	helper := newReaperJobTest(t)
	helper.job.now = func() time.Time { return now }

	stale := helper.seed(4*24*time.Hour, true, false, now)
	fresh := helper.seed(1*24*time.Hour, true, false, now)
	protected := helper.seed(10*24*time.Hour, true, true, now)
	attached := helper.seed(10*24*time.Hour, false, false, now)

	if err := helper.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := helper.repo.rows[stale]; ok {
		t.Fatalf("expected stale provisional key to be deleted")
	}
	for name, id := range map[string]uuid.UUID{
		"fresh":     fresh,
		"protected": protected,
		"attached":  attached,
	} {
		if _, ok := helper.repo.rows[id]; !ok {
			t.Fatalf("expected %s key to survive", name)
		}
	}
	if len(helper.cascader.cascaded) != 1 || helper.cascader.cascaded[0] != stale {
		t.Fatalf("expected media cascade for stale key only, got %v", helper.cascader.cascaded)
	}
}

func TestArtKeyReaperRecheckSparesKeyAttachedMidRun(t *testing.T) {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	helper := newReaperJobTest(t)
	helper.job.now = func() time.Time { return now }

	id := helper.seed(5*24*time.Hour, true, false, now)
	// an order attaches the key between the listing and the delete
	helper.repo.afterList = func() {
		helper.repo.rows[id].IsTemporary = false
	}

	if err := helper.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := helper.repo.rows[id]; !ok {
		t.Fatalf("expected freshly attached key to survive the reap")
	}
	if len(helper.cascader.cascaded) != 0 {
		t.Fatalf("expected no media cascade, got %v", helper.cascader.cascaded)
	}
}

func TestArtKeyReaperHonorsBatchSize(t *testing.T) {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	helper := newReaperJobTest(t)
	helper.job.now = func() time.Time { return now }
	helper.job.batch = 2

	for i := 0; i < 5; i++ {
		helper.seed(6*24*time.Hour, true, false, now)
	}

	if err := helper.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(helper.repo.rows); got != 3 {
		t.Fatalf("expected 3 keys remaining after batched reap, got %d", got)
	}
}
