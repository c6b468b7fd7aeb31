// Package refreshtokens provides a PostgreSQL-backed repository for managing
// refresh tokens used in the server's authentication flow.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// PostgresRepository implements CRUD operations for refresh tokens over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new refresh token for userID with an expiry time of now+validity.
func (r *PostgresRepository) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token, time.Now().Add(validity)); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Find returns the refresh token row for the given token string.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	refreshToken := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, token).
		Scan(&refreshToken.ID, &refreshToken.UserID, &refreshToken.Token, &refreshToken.Expires, &refreshToken.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return refreshToken, nil
}

// DeleteExpired removes every token whose expiry lies before now and reports
// how many rows went away.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a refresh token by its token string.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
