// Package common defines sentinel errors shared by the repository, service and
// transport layers of filevault. Callers should use errors.Is to match these
// values; services wrap them with fmt.Errorf("%w: ...") to attach details.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// File store errors.
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrFileAlreadyExists       = errors.New("file already exists")
	ErrFileNotFound            = errors.New("file not found")
	ErrFileVersionNotFound     = errors.New("file version not found")
	ErrFileContentTypeMismatch = errors.New("file content type mismatch")
	ErrContentAccess           = errors.New("content access failure")

	// Account errors.
	ErrLoginAlreadyExists = errors.New("login already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
