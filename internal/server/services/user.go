// Package services contains server-side business logic: the versioned file
// store (FileService) and account handling with token issuance (UserService).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

// dummyHash is compared against when the user does not exist so that a
// missing account costs as much time as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("filevault-dummy-password"), bcrypt.MinCost)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService provides authentication-related operations:
// - Register: create users with a bcrypt password hash
// - Login: verify credentials and mint tokens
// - Authenticate: verify credentials for HTTP Basic requests
// - RefreshToken: rotate refresh tokens and mint new access tokens
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates a new user. A taken username yields common.ErrLoginAlreadyExists.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", common.ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password is too long", common.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{UserName: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrLoginAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", common.ErrLoginAlreadyExists, username)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Authenticate checks a username/password pair and returns the user.
// Unknown users and wrong passwords both yield common.ErrorUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

// Login verifies credentials and, on success, returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// UserIDFromAccessToken validates an access token and returns its user id.
func (s *UserService) UserIDFromAccessToken(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

// PurgeExpiredRefreshTokens deletes refresh tokens that can no longer be used.
func (s *UserService) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
