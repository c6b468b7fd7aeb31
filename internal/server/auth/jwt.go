// Package auth issues and verifies the HS256 access tokens handed out by the
// login and refresh endpoints.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "filevault"

// Claims carries the registered claims plus the owning user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken validates tokenString and returns the user id it was
// issued for. Expired tokens yield common.ErrTokenExpired; any other failure
// (bad signature, wrong algorithm, garbage) yields common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}
