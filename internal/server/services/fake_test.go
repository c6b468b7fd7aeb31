package services

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/userfiles"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/users"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/versions"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- in-memory database with real commit/rollback ---
//
// memState holds committed rows plus a working copy while a transaction is
// open. The *sql.DB handed to services is backed by memConnector, so
// dbx.WithTx drives begin/commit/rollback here. Transactions are serialized.

type memData struct {
	files         map[int64]*models.File
	versions      map[int64]*models.FileVersion
	nextFileID    int64
	nextVersionID int64
}

func newMemData() *memData {
	return &memData{files: map[int64]*models.File{}, versions: map[int64]*models.FileVersion{}}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.nextFileID, c.nextVersionID = d.nextFileID, d.nextVersionID
	for k, v := range d.files {
		f := *v
		c.files[k] = &f
	}
	for k, v := range d.versions {
		vv := *v
		c.versions[k] = &vv
	}
	return c
}

type memState struct {
	txMu sync.Mutex
	mu   sync.Mutex

	committed *memData
	working   *memData

	base   time.Time
	ticks  int64
	frozen bool

	commits, rollbacks int
}

func newMemState() *memState {
	return &memState{committed: newMemData(), base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *memState) now() time.Time {
	if s.frozen {
		return s.base
	}
	s.ticks++
	return s.base.Add(time.Duration(s.ticks) * time.Millisecond)
}

func (s *memState) begin() {
	s.txMu.Lock()
	s.mu.Lock()
	s.working = s.committed.clone()
	s.mu.Unlock()
}

func (s *memState) end(commit bool) {
	s.mu.Lock()
	if commit {
		s.committed = s.working
		s.commits++
	} else {
		s.rollbacks++
	}
	s.working = nil
	s.mu.Unlock()
	s.txMu.Unlock()
}

// data picks the working copy for transactional handles. Callers hold mu.
func (s *memState) data(db dbx.DBTX) *memData {
	if _, ok := db.(*sql.Tx); ok && s.working != nil {
		return s.working
	}
	return s.committed
}

type memConnector struct{ st *memState }

func (c memConnector) Connect(context.Context) (driver.Conn, error) { return &memConn{st: c.st}, nil }
func (c memConnector) Driver() driver.Driver                        { return memDriver{st: c.st} }

type memDriver struct{ st *memState }

func (d memDriver) Open(string) (driver.Conn, error) { return &memConn{st: d.st}, nil }

type memConn struct{ st *memState }

func (c *memConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *memConn) Close() error                        { return nil }
func (c *memConn) Begin() (driver.Tx, error) {
	c.st.begin()
	return &memTx{st: c.st}, nil
}

type memTx struct {
	st   *memState
	done bool
}

func (t *memTx) Commit() error {
	if !t.done {
		t.done = true
		t.st.end(true)
	}
	return nil
}

func (t *memTx) Rollback() error {
	if !t.done {
		t.done = true
		t.st.end(false)
	}
	return nil
}

// --- fake repositories over memState ---

type memFiles struct {
	st        *memState
	db        dbx.DBTX
	createErr error

	// afterLookup runs once the lookup has read its row, without mu held.
	afterLookup func(inTx bool)
}

func (r *memFiles) Create(ctx context.Context, f *models.File) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	d := r.st.data(r.db)
	for _, existing := range d.files {
		if existing.UserID == f.UserID && existing.Filename == f.Filename {
			return common.ErrFileAlreadyExists
		}
	}
	d.nextFileID++
	f.ID = d.nextFileID
	f.CreatedAt = r.st.now()
	row := *f
	row.Versions = nil
	d.files[f.ID] = &row
	return nil
}

// FindByIDAndOwnerForUpdate relies on memState serializing transactions
// for the lock.
func (r *memFiles) FindByIDAndOwnerForUpdate(ctx context.Context, id int64, owner string) (*models.File, error) {
	r.st.mu.Lock()
	f, ok := r.st.data(r.db).files[id]
	var out models.File
	if ok {
		out = *f
	}
	r.st.mu.Unlock()

	if r.afterLookup != nil {
		_, inTx := r.db.(*sql.Tx)
		r.afterLookup(inTx)
	}
	if !ok || out.UserID != owner {
		return nil, common.ErrorNotFound
	}
	return &out, nil
}

func (r *memFiles) Delete(ctx context.Context, id int64, owner string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	d := r.st.data(r.db)
	f, ok := d.files[id]
	if !ok || f.UserID != owner {
		return common.ErrorNotFound
	}
	delete(d.files, id)
	for vid, v := range d.versions {
		if v.FileID == id {
			delete(d.versions, vid)
		}
	}
	return nil
}

type memVersions struct {
	st        *memState
	db        dbx.DBTX
	createErr error
}

func (r *memVersions) Create(ctx context.Context, v *models.FileVersion) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	d := r.st.data(r.db)
	if _, ok := d.files[v.FileID]; !ok {
		return common.ErrFileNotFound
	}
	for _, existing := range d.versions {
		if existing.UUID == v.UUID {
			return errors.New("duplicate version token")
		}
	}
	d.nextVersionID++
	v.ID = d.nextVersionID
	v.CreatedAt = r.st.now()
	row := *v
	d.versions[v.ID] = &row
	return nil
}

// history returns a file's versions newest first, ties by id. Callers hold mu.
func history(d *memData, fileID int64) []*models.FileVersion {
	f := d.files[fileID]
	var out []*models.FileVersion
	for _, v := range d.versions {
		if v.FileID == fileID {
			vv := *v
			vv.Filename, vv.ContentType = f.Filename, f.ContentType
			out = append(out, &vv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memVersions) ListByFileAndOwner(ctx context.Context, fileID int64, owner string) ([]*models.FileVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	d := r.st.data(r.db)
	f, ok := d.files[fileID]
	if !ok || f.UserID != owner {
		return []*models.FileVersion{}, nil
	}
	return history(d, fileID), nil
}

func (r *memVersions) FindByTokenFileAndOwner(ctx context.Context, token string, fileID int64, owner string) (*models.FileVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	d := r.st.data(r.db)
	f, ok := d.files[fileID]
	if !ok || f.UserID != owner {
		return nil, common.ErrorNotFound
	}
	for _, v := range history(d, fileID) {
		if v.UUID == token {
			return v, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memUserFiles struct {
	st *memState
	db dbx.DBTX
}

// view computes the ranked projection the way user_files_view does.
func (r *memUserFiles) view(d *memData) []*models.UserFile {
	var out []*models.UserFile
	for _, f := range d.files {
		h := history(d, f.ID)
		if len(h) == 0 {
			continue
		}
		oldest := h[len(h)-1].CreatedAt
		for i, v := range h {
			out = append(out, &models.UserFile{
				ID: f.ID, Filename: f.Filename, ContentType: f.ContentType,
				Version: v.UUID, SizeBytes: v.SizeBytes, StorageKey: v.StorageKey,
				CreatedAt: oldest, LastModifiedAt: v.CreatedAt, UserID: f.UserID, Rank: int64(i + 1),
			})
		}
	}
	return out
}

func (r *memUserFiles) FindAllByOwnerAndRank(ctx context.Context, owner string, rank int64) ([]*models.UserFile, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*models.UserFile{}
	for _, uf := range r.view(r.st.data(r.db)) {
		if uf.UserID == owner && uf.Rank == rank {
			out = append(out, uf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (r *memUserFiles) FindByIDOwnerAndRank(ctx context.Context, id int64, owner string, rank int64) (*models.UserFile, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, uf := range r.view(r.st.data(r.db)) {
		if uf.ID == id && uf.UserID == owner && uf.Rank == rank {
			return uf, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUserFiles) FindCurrentByOwner(ctx context.Context, owner string) ([]*models.UserFile, error) {
	return r.FindAllByOwnerAndRank(ctx, owner, userfiles.CurrentRank)
}

// memRepoManager vends the fakes above. Failure knobs apply to every handle.
type memRepoManager struct {
	st               *memState
	fileCreateErr    error
	versionCreateErr error
	afterFileLookup  func(inTx bool)
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) users.Repository              { return nil }
func (m *memRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return nil
}
func (m *memRepoManager) Files(db dbx.DBTX) files.Repository {
	return &memFiles{st: m.st, db: db, createErr: m.fileCreateErr, afterLookup: m.afterFileLookup}
}
func (m *memRepoManager) Versions(db dbx.DBTX) versions.Repository {
	return &memVersions{st: m.st, db: db, createErr: m.versionCreateErr}
}
func (m *memRepoManager) UserFiles(db dbx.DBTX) userfiles.Repository {
	return &memUserFiles{st: m.st, db: db}
}

// --- in-memory blob store ---

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	putErr    error
	getErr    error
	deleteErr error
	presigned string
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("upload aborted: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	m.presigned = key
	return fmt.Sprintf("https://blobs.example/%s?filename=%s&expires=%s", key, filename, expiry), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// --- fixture ---

type fileFixture struct {
	svc   *FileService
	st    *memState
	rm    *memRepoManager
	store *memStore
}

func newFileFixture(t *testing.T) *fileFixture {
	t.Helper()
	st := newMemState()
	db := sql.OpenDB(memConnector{st: st})
	t.Cleanup(func() { _ = db.Close() })

	rm := &memRepoManager{st: st}
	store := newMemStore()
	svc := NewFileService(db, rm, store, logging.NewNop(), 15*time.Minute)
	return &fileFixture{svc: svc, st: st, rm: rm, store: store}
}
