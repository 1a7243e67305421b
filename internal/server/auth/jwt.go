// Package auth issues and verifies the server's session tokens. A token
// proves only which entity the caller is; it grants no decryption
// capability.
package auth

import (
	"errors"
	"time"

	"github.com/emezins/carevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard registered claims plus the entity id the
// session belongs to.
type Claims struct {
	jwt.RegisteredClaims
	EntityID string
}

func GenerateToken(entityID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		EntityID: entityID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetEntityIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.EntityID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.EntityID, nil
}
