package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/db"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := db.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database, "test-secret")
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"short username", RegisterInput{Username: "ab", Email: "a@example.com", Password: "secret1"}, "username must be between 3 and 32 characters"},
		{"bad username", RegisterInput{Username: "bad name", Email: "a@example.com", Password: "secret1"}, "username can only contain letters, numbers, and underscores"},
		{"bad email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "secret1"}, "please enter a valid email"},
		{"short password", RegisterInput{Username: "alice", Email: "a@example.com", Password: "123"}, "password must be at least 6 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.PublicMessage(err))
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, RegisterInput{
		Username: "alice", Email: " Alice@Example.com ", Password: "secret1", Location: "Tehran",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	t.Run("duplicate email", func(t *testing.T) {
		_, _, err := svc.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "secret1"})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, "email already exists", apperr.PublicMessage(err))
	})

	t.Run("login", func(t *testing.T) {
		got, token, err := svc.Login(ctx, "ALICE@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice@example.com", "nope123")
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		assert.Equal(t, "invalid email or password", apperr.PublicMessage(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "bob@example.com", "secret1")
		assert.Equal(t, "invalid email or password", apperr.PublicMessage(err))
	})

	t.Run("authenticate", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, id)

		_, err = svc.Authenticate(ctx, "garbage")
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

		ghost, err := svc.GenerateToken("missing-user")
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, ghost)
		assert.Equal(t, "user not found", apperr.PublicMessage(err))
	})
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "b@example.com", Password: "secret1"})
	require.NoError(t, err)

	bio := "  shares bread  "
	password := "newsecret"
	updated, token, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Bio: &bio, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "shares bread", updated.Bio)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(ctx, "a@example.com", "newsecret")
	require.NoError(t, err)

	taken := "bob"
	_, _, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Username: &taken})
	assert.Equal(t, "username already exists", apperr.PublicMessage(err))

	_, err = svc.Profile(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidateTokenRejectsExpiredAndForeign(t *testing.T) {
	svc := NewWithTokenTTL(nil, "test-secret", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)

	other := NewWithTokenTTL(nil, "other-secret", time.Hour)
	foreign, err := other.GenerateToken("u1")
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)
}
