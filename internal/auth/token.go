package auth

import (
	"errors"
	"fmt"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller extracted from a bearer credential.
type Identity struct {
	UserID int
	Name   string
}

// TokenVerifier validates bearer tokens issued by the identity service.
// Tokens are HMAC-signed by the issuer; this side only verifies, it never
// issues or refreshes.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier constructs a TokenVerifier for the shared signing secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify checks the token signature and expiry and returns the caller
// identity. Any failure is reported as ErrInvalidToken; there is no retry.
func (v *TokenVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)

	return Identity{UserID: int(userID), Name: name}, nil
}
