package httpapi

import (
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
)

const (
	actionCreated = "File created"
	actionUpdated = "File updated"
	actionDeleted = "File deleted"
)

type actionResponse struct {
	Action      string `json:"action"`
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	URI         string `json:"uri"`
}

func newActionResponse(action string, f *models.File, uri string) actionResponse {
	return actionResponse{
		Action:      action,
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		URI:         uri,
	}
}

type fileResponse struct {
	ID             int64     `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"contentType"`
	Version        string    `json:"version"`
	SizeInBytes    int64     `json:"sizeInBytes"`
	CreatedAt      time.Time `json:"createdAt"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

func newFileResponse(uf *models.UserFile) fileResponse {
	return fileResponse{
		ID:             uf.ID,
		Filename:       uf.Filename,
		ContentType:    uf.ContentType,
		Version:        uf.Version,
		SizeInBytes:    uf.SizeBytes,
		CreatedAt:      uf.CreatedAt,
		LastModifiedAt: uf.LastModifiedAt,
	}
}

type versionResponse struct {
	Version     string    `json:"version"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeInBytes int64     `json:"sizeInBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newVersionResponse(v *models.FileVersion) versionResponse {
	return versionResponse{
		Version:     v.UUID,
		Filename:    v.Filename,
		ContentType: v.ContentType,
		SizeInBytes: v.SizeBytes,
		CreatedAt:   v.CreatedAt,
	}
}

type urlResponse struct {
	URL string `json:"url"`
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func newTokenResponse(p *services.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}
