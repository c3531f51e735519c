package artkeys

import (
	"strings"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/security"
	"github.com/blakebenson/artkey-backend/pkg/types"
)

// NewProvisional mints an unpersisted provisional key with a fresh slug, edit
// token, and default fields. Callers persist it inside their own transaction.
func NewProvisional(ownerID *uuid.UUID, title string) (*models.ArtKey, error) {
	token, err := security.GenerateEditToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating edit token")
	}
	slug, err := generateSlug()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating slug")
	}

	fields := types.DefaultArtKeyFields()
	title = strings.TrimSpace(title)
	if title == "" {
		title = fields.Title
	}
	fields.Title = title

	return &models.ArtKey{
		ID:          uuid.New(),
		Slug:        slug,
		Title:       title,
		OwnerUserID: ownerID,
		EditToken:   token,
		IsTemporary: true,
		Fields:      fields,
	}, nil
}
