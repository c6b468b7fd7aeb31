package userfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUserFile = `
	SELECT id, filename, content_type, version, size_bytes, storage_key,
	       created_at, last_modified_at, user_id, date_created_rank
	FROM user_files_view
`

func scanUserFile(row interface{ Scan(...any) error }) (*models.UserFile, error) {
	uf := &models.UserFile{}
	err := row.Scan(&uf.ID, &uf.Filename, &uf.ContentType, &uf.Version, &uf.SizeBytes, &uf.StorageKey,
		&uf.CreatedAt, &uf.LastModifiedAt, &uf.UserID, &uf.Rank)
	return uf, err
}

func (r *PostgresRepository) FindAllByOwnerAndRank(ctx context.Context, owner string, rank int64) ([]*models.UserFile, error) {
	query := selectUserFile + `
	WHERE user_id = $1 AND date_created_rank = $2
	ORDER BY filename COLLATE "C" ASC
	`
	rows, err := r.db.QueryContext(ctx, query, owner, rank)
	if err != nil {
		return nil, fmt.Errorf("failed to select user files: %w", err)
	}
	defer rows.Close()

	result := make([]*models.UserFile, 0)
	for rows.Next() {
		uf, err := scanUserFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, uf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) FindByIDOwnerAndRank(ctx context.Context, id int64, owner string, rank int64) (*models.UserFile, error) {
	query := selectUserFile + `
	WHERE id = $1 AND user_id = $2 AND date_created_rank = $3
	`
	uf, err := scanUserFile(r.db.QueryRowContext(ctx, query, id, owner, rank))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return uf, nil
}

func (r *PostgresRepository) FindCurrentByOwner(ctx context.Context, owner string) ([]*models.UserFile, error) {
	return r.FindAllByOwnerAndRank(ctx, owner, CurrentRank)
}
