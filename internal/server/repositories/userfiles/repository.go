// Package userfiles reads the ranked user_files_view projection. Rank 1 of a
// file is its current version; the view is never written.
package userfiles

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// CurrentRank is the rank of the newest version of a file.
const CurrentRank = 1

type Repository interface {
	// FindAllByOwnerAndRank returns one row per file of owner at the given
	// rank, ordered by filename in byte order.
	FindAllByOwnerAndRank(ctx context.Context, owner string, rank int64) ([]*models.UserFile, error)
	// FindByIDOwnerAndRank returns common.ErrorNotFound when the file is
	// absent, foreign, or has fewer than rank versions.
	FindByIDOwnerAndRank(ctx context.Context, id int64, owner string, rank int64) (*models.UserFile, error)
	FindCurrentByOwner(ctx context.Context, owner string) ([]*models.UserFile, error)
}
