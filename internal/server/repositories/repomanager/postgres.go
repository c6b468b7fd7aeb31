// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/migrations"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/userfiles"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/users"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/versions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Versions(db dbx.DBTX) versions.Repository {
	return versions.NewPostgresRepository(db)
}

// UserFiles returns the read-only ranked view repository.
func (m *PostgresRepositoryManager) UserFiles(db dbx.DBTX) userfiles.Repository {
	return userfiles.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations to db.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
