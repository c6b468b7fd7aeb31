package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/blobstore"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/userfiles"
	"github.com/google/uuid"
)

// newVersionToken is a seam for tests that need predictable version tokens.
var newVersionToken = func() string { return uuid.New().String() }

// StorageKey returns the blob store key for a version payload.
func StorageKey(owner string, fileID int64, token string) string {
	return fmt.Sprintf("users/%s/files/%d/%s", owner, fileID, token)
}

// FileService is the versioned file store. It keeps no state of its own:
// metadata lives in Postgres, payloads in the blob store, and the current
// version of a file is always derived from the ranked view.
type FileService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	store         blobstore.Store
	log           logging.Logger
	presignExpiry time.Duration
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Store, log logging.Logger, presignExpiry time.Duration) *FileService {
	return &FileService{
		db:            db,
		repomanager:   m,
		store:         store,
		log:           log.With("module", "files"),
		presignExpiry: presignExpiry,
	}
}

// Create registers a new file for owner and stores content as its first
// version. The file row, the version row and the payload upload share one
// transaction: if any of them fails nothing is committed and an uploaded
// payload is removed again.
func (s *FileService) Create(ctx context.Context, owner, filename, contentType string, content io.Reader, size int64) (*models.File, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: The filename cannot be empty", common.ErrInvalidArgument)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: The user cannot be empty", common.ErrInvalidArgument)
	}
	if err := checkContent(content, size); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	file := &models.File{UserID: owner, Filename: filename, ContentType: contentType}
	var uploaded string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			if errors.Is(err, common.ErrFileAlreadyExists) {
				return fmt.Errorf("%w: The filename '%s' already exists", common.ErrFileAlreadyExists, filename)
			}
			return fmt.Errorf("error creating file: %w", err)
		}

		v, err := s.appendVersion(ctx, tx, file, content, size)
		if v != nil {
			uploaded = v.StorageKey
		}
		if err != nil {
			return err
		}
		file.Versions = []*models.FileVersion{v}
		return nil
	})
	if err != nil {
		if uploaded != "" {
			s.removeBlobs(ctx, uploaded)
		}
		return nil, err
	}

	s.log.Info(ctx, "file created", "file_id", file.ID, "owner", owner, "size", size)
	return file, nil
}

// Update appends a new version to an existing file. The content type must
// match the file's, ignoring case; the file row itself is never modified.
func (s *FileService) Update(ctx context.Context, fileID int64, owner, contentType string, content io.Reader, size int64) (*models.File, error) {
	if err := checkContent(content, size); err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = models.DefaultContentType
	}

	var file *models.File
	var uploaded string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		file, err = s.lockFile(ctx, tx, fileID, owner)
		if err != nil {
			return err
		}
		if !strings.EqualFold(file.ContentType, contentType) {
			return fmt.Errorf("%w: The uploaded file's content type '%s' does not match. It must be '%s'",
				common.ErrFileContentTypeMismatch, contentType, file.ContentType)
		}

		v, err := s.appendVersion(ctx, tx, file, content, size)
		if v != nil {
			uploaded = v.StorageKey
		}
		if err != nil {
			return err
		}
		file.Versions = []*models.FileVersion{v}
		return nil
	})
	if err != nil {
		if uploaded != "" {
			s.removeBlobs(ctx, uploaded)
		}
		return nil, err
	}

	s.log.Info(ctx, "file updated", "file_id", file.ID, "owner", owner, "version", file.Versions[0].UUID, "size", size)
	return file, nil
}

// Delete removes a file with its whole history and returns the file as it
// was. Payloads are removed after the commit; a payload that cannot be
// removed is logged and left behind.
func (s *FileService) Delete(ctx context.Context, fileID int64, owner string) (*models.File, error) {
	var file *models.File
	var keys []string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		file, err = s.lockFile(ctx, tx, fileID, owner)
		if err != nil {
			return err
		}

		versions, err := s.repomanager.Versions(tx).ListByFileAndOwner(ctx, fileID, owner)
		if err != nil {
			return fmt.Errorf("error listing versions: %w", err)
		}
		for _, v := range versions {
			keys = append(keys, v.StorageKey)
		}

		if err := s.repomanager.Files(tx).Delete(ctx, fileID, owner); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fileNotFound(fileID)
			}
			return fmt.Errorf("error deleting file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.removeBlobs(ctx, keys...)
	s.log.Info(ctx, "file deleted", "file_id", fileID, "owner", owner, "versions", len(keys))
	return file, nil
}

// ListCurrent returns the current version of every file owned by owner,
// ordered by filename. An empty owner has no files.
func (s *FileService) ListCurrent(ctx context.Context, owner string) ([]*models.UserFile, error) {
	if owner == "" {
		return []*models.UserFile{}, nil
	}
	list, err := s.repomanager.UserFiles(s.db).FindCurrentByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return list, nil
}

// GetCurrent returns the current version of one file.
func (s *FileService) GetCurrent(ctx context.Context, fileID int64, owner string) (*models.UserFile, error) {
	return s.GetVersionAt(ctx, fileID, owner, userfiles.CurrentRank)
}

// GetVersionAt returns the version at the given rank, 1 being the newest.
func (s *FileService) GetVersionAt(ctx context.Context, fileID int64, owner string, rank int64) (*models.UserFile, error) {
	if owner == "" || fileID <= 0 || rank < 1 {
		return nil, fileNotFound(fileID)
	}
	uf, err := s.repomanager.UserFiles(s.db).FindByIDOwnerAndRank(ctx, fileID, owner, rank)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fileNotFound(fileID)
		}
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return uf, nil
}

// ListVersions returns the history of a file, newest first. A missing or
// foreign file has an empty history.
func (s *FileService) ListVersions(ctx context.Context, fileID int64, owner string) ([]*models.FileVersion, error) {
	if owner == "" || fileID <= 0 {
		return []*models.FileVersion{}, nil
	}
	list, err := s.repomanager.Versions(s.db).ListByFileAndOwner(ctx, fileID, owner)
	if err != nil {
		return nil, fmt.Errorf("error listing versions: %w", err)
	}
	return list, nil
}

// GetVersion looks a version up by its token. Token, file and owner must all
// match.
func (s *FileService) GetVersion(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, error) {
	if _, err := uuid.Parse(token); err != nil || owner == "" || fileID <= 0 {
		return nil, versionNotFound(token, fileID)
	}
	v, err := s.repomanager.Versions(s.db).FindByTokenFileAndOwner(ctx, token, fileID, owner)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, versionNotFound(token, fileID)
		}
		return nil, fmt.Errorf("error reading version: %w", err)
	}
	return v, nil
}

// OpenVersionContent returns a version together with a reader over its
// payload. The reader is lazy and must be closed by the caller.
func (s *FileService) OpenVersionContent(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, io.ReadCloser, error) {
	v, err := s.GetVersion(ctx, token, fileID, owner)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openBlob(ctx, v.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return v, rc, nil
}

// OpenCurrentContent is OpenVersionContent for the current version.
func (s *FileService) OpenCurrentContent(ctx context.Context, fileID int64, owner string) (*models.UserFile, io.ReadCloser, error) {
	uf, err := s.GetCurrent(ctx, fileID, owner)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openBlob(ctx, uf.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return uf, rc, nil
}

// PresignVersionURL returns a time-limited download URL for a version.
func (s *FileService) PresignVersionURL(ctx context.Context, token string, fileID int64, owner string) (string, error) {
	v, err := s.GetVersion(ctx, token, fileID, owner)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignGet(ctx, v.StorageKey, v.Filename, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("error presigning url: %w", err)
	}
	return url, nil
}

// appendVersion inserts a version row for file and streams the payload. The
// returned version is non-nil once its payload may exist in the blob store,
// even when an error is returned alongside it.
func (s *FileService) appendVersion(ctx context.Context, tx dbx.DBTX, file *models.File, content io.Reader, size int64) (*models.FileVersion, error) {
	token := newVersionToken()
	v := &models.FileVersion{
		UUID:        token,
		FileID:      file.ID,
		SizeBytes:   size,
		StorageKey:  StorageKey(file.UserID, file.ID, token),
		Filename:    file.Filename,
		ContentType: file.ContentType,
	}
	if err := s.repomanager.Versions(tx).Create(ctx, v); err != nil {
		if errors.Is(err, common.ErrFileNotFound) {
			return nil, fileNotFound(file.ID)
		}
		return nil, fmt.Errorf("error creating version: %w", err)
	}

	body := blobstore.ExactReader(content, size)
	if err := s.store.Put(ctx, v.StorageKey, body, size, file.ContentType); err != nil {
		if cerr := body.Err(); cerr != nil {
			return v, fmt.Errorf("%w: %v", common.ErrContentAccess, cerr)
		}
		return v, fmt.Errorf("error storing content: %w", err)
	}
	return v, nil
}

// lockFile reads the file row and holds its lock until tx ends, so a
// concurrent Update or Delete of the same file waits for this one.
func (s *FileService) lockFile(ctx context.Context, tx dbx.DBTX, fileID int64, owner string) (*models.File, error) {
	if owner == "" || fileID <= 0 {
		return nil, fileNotFound(fileID)
	}
	f, err := s.repomanager.Files(tx).FindByIDAndOwnerForUpdate(ctx, fileID, owner)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fileNotFound(fileID)
		}
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return f, nil
}

func (s *FileService) openBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Error(ctx, "cannot open payload", "key", key, "error", err)
		return nil, fmt.Errorf("%w: cannot read stored content", common.ErrContentAccess)
	}
	return rc, nil
}

// removeBlobs deletes payloads that no committed version refers to. It runs
// detached from ctx so a cancelled request still cleans up.
func (s *FileService) removeBlobs(ctx context.Context, keys ...string) {
	cctx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(cctx, key); err != nil {
			s.log.Warn(ctx, "cannot remove payload", "key", key, "error", err)
		}
	}
}

func checkContent(content io.Reader, size int64) error {
	if content == nil {
		return fmt.Errorf("%w: The content cannot be empty", common.ErrInvalidArgument)
	}
	if size < 0 {
		return fmt.Errorf("%w: The size cannot be negative", common.ErrInvalidArgument)
	}
	return nil
}

func fileNotFound(fileID int64) error {
	return fmt.Errorf("%w: File with id '%d' not found", common.ErrFileNotFound, fileID)
}

func versionNotFound(token string, fileID int64) error {
	return fmt.Errorf("%w: File version '%s' for file id '%d' not found", common.ErrFileVersionNotFound, token, fileID)
}
