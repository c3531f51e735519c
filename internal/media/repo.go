package media

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
)

// ListFilter narrows asset listings. Nil members mean "any".
type ListFilter struct {
	Kind     *enums.MediaKind
	Approved *bool
}

// Repository persists media asset rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a media repository over the shared gorm handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertWithTx(tx *gorm.DB, asset *models.MediaAsset) error {
	return tx.Create(asset).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	if err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	if err := tx.First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) SaveWithTx(tx *gorm.DB, asset *models.MediaAsset) error {
	return tx.Save(asset).Error
}

func (r *Repository) DeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&models.MediaAsset{}, "id = ?", id).Error
}

// List returns untagged assets for an Art Key, newest first. Role-tagged rows
// are addressed through the key's fields and never appear in listings.
func (r *Repository) List(ctx context.Context, artKeyID uuid.UUID, filter ListFilter) ([]models.MediaAsset, error) {
	query := r.db.WithContext(ctx).
		Where("art_key_id = ?", artKeyID).
		Where("role = ?", enums.MediaRoleNone)
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Approved != nil {
		query = query.Where("approved = ?", *filter.Approved)
	}

	var assets []models.MediaAsset
	if err := query.Order("created_at DESC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// ListByArtKeyWithTx returns every asset row of a key, tagged rows included.
func (r *Repository) ListByArtKeyWithTx(tx *gorm.DB, artKeyID uuid.UUID) ([]models.MediaAsset, error) {
	var assets []models.MediaAsset
	if err := tx.Where("art_key_id = ?", artKeyID).Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *Repository) DeleteByArtKeyWithTx(tx *gorm.DB, artKeyID uuid.UUID) error {
	return tx.Delete(&models.MediaAsset{}, "art_key_id = ?", artKeyID).Error
}
