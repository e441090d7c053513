package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	ts := NewTokenService("test-secret", 15*time.Minute, 7*24*time.Hour)
	userID := uuid.New()

	pair, err := ts.GenerateTokenPair(userID.String(), "ada@example.com", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.TokenID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt, time.Minute)

	principal, err := ts.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, "admin", principal.Role)

	claims, err := ts.ValidateToken(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, pair.TokenID, claims["jti"])
}

func TestTokenServiceRejectsWrongType(t *testing.T) {
	ts := NewTokenService("test-secret", 15*time.Minute, time.Hour)
	pair, err := ts.GenerateTokenPair(uuid.NewString(), "a@example.com", "user")
	require.NoError(t, err)

	_, err = ts.ParseAccessToken(pair.RefreshToken)
	assert.Equal(t, 401, apperrors.From(err).Code)

	_, err = ts.ValidateToken(pair.AccessToken, TokenTypeRefresh)
	assert.Error(t, err)
}

func TestTokenServiceExpired(t *testing.T) {
	ts := NewTokenService("test-secret", -time.Minute, time.Hour)
	token, err := ts.GenerateAccessToken(uuid.NewString(), "a@example.com", "user")
	require.NoError(t, err)

	_, err = ts.ParseAccessToken(token)
	assert.True(t, errors.Is(err, apperrors.ErrTokenExpired))
}

func TestTokenServiceRejectsForeignSignature(t *testing.T) {
	other := NewTokenService("other-secret", time.Minute, time.Hour)
	token, err := other.GenerateAccessToken(uuid.NewString(), "a@example.com", "user")
	require.NoError(t, err)

	ts := NewTokenService("test-secret", time.Minute, time.Hour)
	_, err = ts.ParseAccessToken(token)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))

	_, err = ts.ParseAccessToken(strings.TrimSuffix(token, token[len(token)-2:]))
	assert.Error(t, err)
}
