// Package httpapi exposes the file store and the account operations over
// HTTP/JSON using gin.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// FileStore is the subset of services.FileService used by the handlers.
type FileStore interface {
	Create(ctx context.Context, owner, filename, contentType string, content io.Reader, size int64) (*models.File, error)
	Update(ctx context.Context, fileID int64, owner, contentType string, content io.Reader, size int64) (*models.File, error)
	Delete(ctx context.Context, fileID int64, owner string) (*models.File, error)
	ListCurrent(ctx context.Context, owner string) ([]*models.UserFile, error)
	GetCurrent(ctx context.Context, fileID int64, owner string) (*models.UserFile, error)
	ListVersions(ctx context.Context, fileID int64, owner string) ([]*models.FileVersion, error)
	GetVersion(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, error)
	OpenCurrentContent(ctx context.Context, fileID int64, owner string) (*models.UserFile, io.ReadCloser, error)
	OpenVersionContent(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, io.ReadCloser, error)
	PresignVersionURL(ctx context.Context, token string, fileID int64, owner string) (string, error)
}

// Accounts is the subset of services.UserService used by the handlers and
// the authentication middleware.
type Accounts interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserIDFromAccessToken(token string) (string, error)
}

type HTTPServer struct {
	address         string
	files           FileStore
	users           Accounts
	logger          logging.Logger
	multipartMemory int64
	maxUploadSize   int64
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, us Accounts, fs FileStore) *HTTPServer {
	return &HTTPServer{
		address:         cfg.HTTPAddr,
		files:           fs,
		users:           us,
		logger:          l.With("module", "http_server"),
		multipartMemory: cfg.MultipartMemory,
		maxUploadSize:   cfg.MaxUploadSize,
	}
}

// Handler builds the gin engine with all routes registered.
func (s *HTTPServer) Handler() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if s.multipartMemory > 0 {
		r.MaxMultipartMemory = s.multipartMemory
	}

	r.Use(gin.Recovery(), s.requestLogger)

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "Resource not found")
	})
	r.NoMethod(func(c *gin.Context) {
		abortWithError(c, http.StatusMethodNotAllowed, "Request method not supported")
	})

	r.GET("/ping", s.ping)

	a := r.Group("/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.POST("/refresh", s.refresh)

	f := r.Group("/files", s.authRequired)
	f.POST("", s.createFile)
	f.GET("", s.listFiles)
	f.GET("/:fileId", s.getFile)
	f.PATCH("/:fileId", s.updateFile)
	f.DELETE("/:fileId", s.deleteFile)
	f.GET("/:fileId/content", s.getFileContent)
	f.GET("/:fileId/versions", s.listVersions)
	f.GET("/:fileId/versions/:version", s.getVersion)
	f.GET("/:fileId/versions/:version/content", s.getVersionContent)
	f.GET("/:fileId/versions/:version/url", s.getVersionURL)

	return r
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
