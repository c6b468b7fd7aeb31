package users

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts user and returns it with ID and CreatedAt set. A taken
	// username yields common.ErrLoginAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetUserByLogin returns common.ErrorNotFound for an unknown username.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
