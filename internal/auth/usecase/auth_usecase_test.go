package usecase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	uc := NewAuthUsecase("secret")

	token, err := uc.IssueToken("operator@example.com", time.Hour)
	require.NoError(t, err)

	subject, err := uc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator@example.com", subject)
}

func TestValidateTokenRejects(t *testing.T) {
	uc := NewAuthUsecase("secret").(*authUsecase)

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewAuthUsecase("other").IssueToken("operator", time.Hour)
		require.NoError(t, err)
		_, err = uc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := uc.IssueToken("operator", time.Minute)
		require.NoError(t, err)

		later := &authUsecase{secret: uc.secret, now: func() time.Time { return time.Now().Add(time.Hour) }}
		_, err = later.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(uc.secret)
		require.NoError(t, err)
		_, err = uc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(uc.secret)
		require.NoError(t, err)
		_, err = uc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := uc.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
