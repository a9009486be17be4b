// Package auth issues and verifies the HS256 access tokens handed to
// clients. A token carries the full identity so request handlers never
// touch the users table.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

// Claims are the registered claims plus the bearer's identity.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	CompanyID string `json:"companyId"`
	Role      string `json:"role"`
}

func GenerateToken(id models.Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Email:     id.Email,
		CompanyID: id.CompanyID,
		Role:      id.Role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its identity. Expired tokens
// yield common.ErrTokenExpired so callers can tell clients to refresh;
// every other failure is common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (models.Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, common.ErrTokenExpired
		}
		return models.Identity{}, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" || claims.CompanyID == "" {
		return models.Identity{}, common.ErrInvalidToken
	}

	return models.Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		CompanyID: claims.CompanyID,
		Role:      claims.Role,
	}, nil
}
