package artkeys

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
)

// Repository exposes Art Key persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithTx persists a new Art Key inside the caller's transaction.
func (r *Repository) CreateWithTx(tx *gorm.DB, key *models.ArtKey) error {
	return tx.Create(key).Error
}

// FindByID retrieves an Art Key by ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error) {
	var key models.ArtKey
	if err := r.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// FindBySlug retrieves an Art Key by its public slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.ArtKey, error) {
	var key models.ArtKey
	if err := r.db.WithContext(ctx).First(&key, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// FindByIDWithTx retrieves an Art Key inside the caller's transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error) {
	var key models.ArtKey
	if err := tx.First(&key, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Save writes the full row back.
func (r *Repository) Save(ctx context.Context, key *models.ArtKey) error {
	return r.db.WithContext(ctx).Save(key).Error
}

// SaveWithTx writes the full row back inside the caller's transaction.
func (r *Repository) SaveWithTx(tx *gorm.DB, key *models.ArtKey) error {
	return tx.Save(key).Error
}

// ListTemporaryBefore returns unprotected provisional keys older than cutoff.
func (r *Repository) ListTemporaryBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ArtKey, error) {
	var rows []models.ArtKey
	err := r.db.WithContext(ctx).
		Where("is_temporary = ? AND is_admin_protected = ? AND created_at < ?", true, false, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteWithTx removes an Art Key row inside the caller's transaction.
func (r *Repository) DeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Where("id = ?", id).Delete(&models.ArtKey{}).Error
}

// List returns keys for the admin surface, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.ArtKey, error) {
	var rows []models.ArtKey
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}
