// Package tokens decides whether a caller may edit an Art Key.
package tokens

import (
	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/security"
)

// Capabilities describes the authenticated caller. A zero value is an
// anonymous visitor.
type Capabilities struct {
	UserID  *uuid.UUID
	IsAdmin bool
}

// CanEdit grants access to admins, the owning user, and bearers of the
// stored edit token. Token comparison is constant time.
func CanEdit(caps Capabilities, key *models.ArtKey, presentedToken string) bool {
	if key == nil {
		return false
	}
	if caps.IsAdmin {
		return true
	}
	if caps.UserID != nil && key.OwnerUserID != nil && *caps.UserID == *key.OwnerUserID {
		return true
	}
	return security.TokensEqual(presentedToken, key.EditToken)
}
