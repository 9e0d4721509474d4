package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sphere/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, RegisterInput{Username: "alice", Email: " A@X.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, models.DefaultAvatar, user.Avatar)
	assert.NotEqual(t, "secret123", user.Password)
	assert.True(t, strings.HasPrefix(user.Password, "$2"), "password must be stored as a bcrypt hash")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.auth.Register(ctx, RegisterInput{Username: "alice2", Email: "a@x.com", Password: "secret123"})
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)
	})

	t.Run("duplicate username is caught by the unique index", func(t *testing.T) {
		_, err := f.auth.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: "secret123"})
		assert.ErrorIs(t, err, models.ErrDuplicateUsername)
	})

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing username", RegisterInput{Email: "b@x.com", Password: "secret123"}},
		{"short username", RegisterInput{Username: "ab", Email: "b@x.com", Password: "secret123"}},
		{"bad email", RegisterInput{Username: "bob", Email: "bob", Password: "secret123"}},
		{"short password", RegisterInput{Username: "bob", Email: "b@x.com", Password: "12345"}},
		{"long password", RegisterInput{Username: "bob", Email: "b@x.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.in)
			assertCode(t, err, models.CodeValidation)
		})
	}
}

func TestAuthService_AuthenticateIsGeneric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	token, user, err := f.auth.Authenticate(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)

	_, _, wrongPassword := f.auth.Authenticate(ctx, "alice@example.com", "wrong-password")
	_, _, unknownEmail := f.auth.Authenticate(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, wrongPassword, models.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, models.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthService_VerifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	token, err := f.auth.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)

	claims, err := f.auth.VerifyToken(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, alice.Email, claims.Email)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, epoch, claims.IssuedAt, 0)
	assert.WithinDuration(t, epoch.Add(time.Hour), claims.ExpiresAt, 0)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	other := NewAuthService(nil, nil, f.clock, AuthConfig{Secret: []byte("another-secret")})
	foreign, err := other.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"missing header", "", models.ReasonMissing},
		{"wrong scheme", "Basic " + token, models.ReasonMalformed},
		{"bearer without token", "Bearer ", models.ReasonMalformed},
		{"not a jwt", "Bearer not-a-jwt", models.ReasonMalformed},
		{"flipped signature byte", "Bearer " + tampered, models.ReasonInvalid},
		{"signed with another secret", "Bearer " + foreign, models.ReasonInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.VerifyToken(ctx, tt.header)
			assertReason(t, err, tt.reason)
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(time.Hour + time.Second)
		_, err := f.auth.VerifyToken(ctx, "Bearer "+token)
		assertReason(t, err, models.ReasonExpired)
	})
}

func TestAuthService_LogoutRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	token, err := f.auth.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)
	claims, err := f.auth.VerifyToken(ctx, "Bearer "+token)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, claims))
	_, err = f.auth.VerifyToken(ctx, "Bearer "+token)
	assertReason(t, err, models.ReasonInvalid)

	ttl := f.redis.TTL("auth:revoked:" + claims.TokenID)
	assert.Equal(t, time.Hour, ttl)
}

func TestAuthService_RevocationFailsOpen(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	token, err := f.auth.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)

	f.redis.Close()
	claims, err := f.auth.VerifyToken(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
}

func TestAuthService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	token, err := f.auth.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.auth.VerifyToken(ctx, "Bearer "+token)
	assertReason(t, err, models.ReasonExpired)

	fresh, err := f.auth.Refresh(ctx, token)
	require.NoError(t, err)
	claims, err := f.auth.VerifyToken(ctx, "Bearer "+fresh)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)

	_, err = f.auth.Refresh(ctx, token)
	assertReason(t, err, models.ReasonInvalid)

	f.clock.Advance(48 * time.Hour)
	_, err = f.auth.Refresh(ctx, fresh)
	assertReason(t, err, models.ReasonExpired)

	_, err = f.auth.Refresh(ctx, "")
	assertReason(t, err, models.ReasonMissing)
	_, err = f.auth.Refresh(ctx, "garbage")
	assertReason(t, err, models.ReasonMalformed)
}

func TestAuthService_RefreshIsSingleUseUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	token, err := f.auth.IssueToken(alice.ID, alice.Email)
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		invalid atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Refresh(ctx, token)
			if err == nil {
				won.Add(1)
				return
			}
			if errors.Is(err, models.ErrTokenInvalid) {
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(callers-1), invalid.Load())
}

func assertReason(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeUnauthorized, appErr.Code)
	assert.Equal(t, reason, appErr.Reason)
}
