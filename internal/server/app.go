// Package server wires the filevault server together: Postgres metadata,
// the S3 payload store, the services and the HTTP API. It also owns the
// process lifecycle (signals, graceful shutdown, periodic housekeeping).
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/blobstore"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/httpapi"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/gin-gonic/gin"
)

const refreshTokenPurgeInterval = time.Hour

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
	fileService *services.FileService
}

// NewApp connects to Postgres, applies migrations, makes sure the payload
// bucket exists and builds the services.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
		Region:    c.S3Region,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Endpoint:  c.S3BaseEndpoint,
		Bucket:    c.S3Bucket,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store bucket error: %w", err)
	}

	us := services.NewUserService(db, rm, c)
	fs := services.NewFileService(db, rm, store, logger, c.PresignExpiry)

	return &App{config: c, logger: logger, db: db, userService: us, fileService: fs}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if logging.ParseLevel(app.config.LogLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := httpapi.NewHTTPServer(app.config, app.logger, app.userService, app.fileService)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeRefreshTokens drops expired refresh tokens until ctx is done.
func (app *App) purgeRefreshTokens(ctx context.Context) {
	ticker := time.NewTicker(refreshTokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.userService.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeRefreshTokens(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
