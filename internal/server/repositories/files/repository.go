package files

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// Repository persists File rows. Every lookup is scoped by owner so a file
// belonging to someone else is indistinguishable from a missing one.
type Repository interface {
	// Create inserts file and fills in its ID and CreatedAt. A clash on
	// (owner, filename) returns common.ErrFileAlreadyExists.
	Create(ctx context.Context, file *models.File) error
	// FindByIDAndOwnerForUpdate row-locks the file until the surrounding
	// transaction ends. It returns common.ErrorNotFound when absent.
	FindByIDAndOwnerForUpdate(ctx context.Context, id int64, owner string) (*models.File, error)
	// Delete removes the file and, by cascade, all its versions.
	Delete(ctx context.Context, id int64, owner string) error
}
