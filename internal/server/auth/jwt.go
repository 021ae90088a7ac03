// Package auth issues and verifies access tokens and evaluates the permission
// checks guarding every catalog operation.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user identity and the role mask the token was minted
// with. The role is compared with the stored user on every request.
type Claims struct {
	jwt.RegisteredClaims
	Nickname string `json:"nickname"`
	Role     uint32 `json:"role"`
}

func GenerateToken(p Principal, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Nickname: p.Nickname,
		Role:     uint32(p.Role),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry and returns the principal
// the token claims to be.
func ParseToken(tokenString string, secretKey []byte) (Principal, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, common.ErrTokenExpired
		}
		return Principal{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return Principal{}, common.ErrInvalidToken
	}

	return Principal{UserID: claims.Subject, Nickname: claims.Nickname, Role: Permissions(claims.Role)}, nil
}
