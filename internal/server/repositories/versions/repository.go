// Package versions persists the immutable FileVersion rows of a file's history.
package versions

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Create appends v and fills in its ID and CreatedAt. Rows are never updated.
	Create(ctx context.Context, v *models.FileVersion) error
	// ListByFileAndOwner returns the versions newest first, ties broken by
	// insertion order. An unknown file or foreign owner yields an empty slice.
	ListByFileAndOwner(ctx context.Context, fileID int64, owner string) ([]*models.FileVersion, error)
	// FindByTokenFileAndOwner returns common.ErrorNotFound unless token, file
	// and owner all match.
	FindByTokenFileAndOwner(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, error)
}
