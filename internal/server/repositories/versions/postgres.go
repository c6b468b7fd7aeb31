package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

const fileFK = "file_versions_file_id_fkey"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.FileVersion) error {
	query := `
		INSERT INTO file_versions (uuid, file_id, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, v.UUID, v.FileID, v.SizeBytes, v.StorageKey).
		Scan(&v.ID, &v.CreatedAt); err != nil {
		if dbx.IsForeignKeyViolation(err, fileFK) {
			return common.ErrFileNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectVersion = `
	SELECT v.id, v.uuid, v.file_id, v.size_bytes, v.storage_key, v.created_at, f.filename, f.content_type
	FROM file_versions v
	JOIN files f ON f.id = v.file_id
`

func scanVersion(row interface{ Scan(...any) error }) (*models.FileVersion, error) {
	v := &models.FileVersion{}
	err := row.Scan(&v.ID, &v.UUID, &v.FileID, &v.SizeBytes, &v.StorageKey, &v.CreatedAt, &v.Filename, &v.ContentType)
	return v, err
}

func (r *PostgresRepository) ListByFileAndOwner(ctx context.Context, fileID int64, owner string) ([]*models.FileVersion, error) {
	query := selectVersion + `
	WHERE f.id = $1 AND f.user_id = $2
	ORDER BY v.created_at DESC, v.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, fileID, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	result := make([]*models.FileVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) FindByTokenFileAndOwner(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, error) {
	query := selectVersion + `
	WHERE v.uuid = $1 AND f.id = $2 AND f.user_id = $3
	`
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, token, fileID, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}
