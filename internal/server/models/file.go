// Package models defines server-side data models persisted in the database.
package models

import "time"

// DefaultContentType is assigned to files uploaded without a content type.
const DefaultContentType = "application/octet-stream"

// File is a named, owned container of versions. Its content type is fixed
// when the file is created and every later version must match it.
type File struct {
	ID          int64
	UserID      string
	Filename    string
	ContentType string
	CreatedAt   time.Time

	// Versions is filled only by operations that create or return versions
	// together with the file (Create, Update); it is never a full history.
	Versions []*FileVersion
}

// FileVersion is one immutable payload snapshot of a File. The payload itself
// lives in the blob store under StorageKey.
type FileVersion struct {
	// ID is the store-assigned insertion sequence; it breaks created_at ties.
	ID int64
	// UUID is the opaque version token exposed to clients.
	UUID       string
	FileID     int64
	SizeBytes  int64
	StorageKey string
	CreatedAt  time.Time

	// Filename and ContentType are copied from the owning File when versions
	// are read back for display.
	Filename    string
	ContentType string
}

// UserFile is a row of the ranked per-file view: one file joined with one of
// its versions. Rank 1 is the current version.
type UserFile struct {
	ID             int64
	Filename       string
	ContentType    string
	Version        string
	SizeBytes      int64
	StorageKey     string
	CreatedAt      time.Time
	LastModifiedAt time.Time
	UserID         string
	Rank           int64
}
