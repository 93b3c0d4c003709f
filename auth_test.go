package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokens_IssueVerify(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)

	tok, err := tokens.Issue(&User{ID: 42, Email: "vet@clinic.test", Role: RoleAdmin})
	require.NoError(t, err)

	claims, err := tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "vet@clinic.test", claims.Email)
	require.Equal(t, RoleAdmin, claims.Role)
	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokens_RejectsTamperedAndExpired(t *testing.T) {
	tokens := NewTokens(testSecret, time.Minute)
	tok, err := tokens.Issue(&User{ID: 1, Role: RoleUser})
	require.NoError(t, err)

	_, err = NewTokens("different", time.Minute).Verify(tok)
	require.ErrorIs(t, err, errTokenInvalid)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Verify(tok)
	require.ErrorIs(t, err, errTokenInvalid)
}

func TestTokens_RequiresExpiry(t *testing.T) {
	claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokens(testSecret, time.Hour).Verify(tok)
	require.ErrorIs(t, err, errTokenInvalid)
}

func TestTokens_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokens(testSecret, time.Hour).Verify(tok)
	require.ErrorIs(t, err, errTokenInvalid)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)
	require.True(t, comparePassword(hash, "s3cret"))
	require.False(t, comparePassword(hash, "wrong"))
}
