package auth

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"user_id": 42,
		"name":    "alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	identity, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 42, Name: "alice"}, identity)
}

func TestVerifyWrongSecret(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	token := signToken(t, "other", jwt.MapClaims{"user_id": 42})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingUserID(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{"name": "alice"})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	_, err := verifier.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
