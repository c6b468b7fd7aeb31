package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

const uniqueOwnerFilename = "files_user_id_filename_key"

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (user_id, filename, content_type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, file.UserID, file.Filename, file.ContentType).
		Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueOwnerFilename) {
			return common.ErrFileAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByIDAndOwnerForUpdate must run inside a transaction; on a plain
// *sql.DB the lock is released as soon as the statement completes.
func (r *PostgresRepository) FindByIDAndOwnerForUpdate(ctx context.Context, id int64, owner string) (*models.File, error) {
	query := `
		SELECT id, user_id, filename, content_type, created_at
		FROM files
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`
	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, id, owner).
		Scan(&f.ID, &f.UserID, &f.Filename, &f.ContentType, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// Delete removes exactly one row; zero rows affected yields common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, id int64, owner string) error {
	query := `DELETE FROM files WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
