package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/userfiles"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/users"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a *sql.Tx,
// so services can run the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
	Versions(db dbx.DBTX) versions.Repository
	UserFiles(db dbx.DBTX) userfiles.Repository
}
