package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/server/auth"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

func TestRegister_Success(t *testing.T) {
	s, rm, _ := newUserService(t)

	u, err := s.Register(context.Background(), " Alice@Example.com ", "hunter22", "Alice", "Acme")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.NotEmpty(t, u.CompanyID)
	assert.NotEqual(t, u.ID, u.CompanyID)
	assert.Equal(t, "Acme", u.CompanyName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")))
	assert.Contains(t, rm.users.byID, u.ID)
}

func TestRegister_Companies(t *testing.T) {
	s, _, _ := newUserService(t)

	a, err := s.Register(context.Background(), "a@example.com", "password", "", "")
	require.NoError(t, err)
	b, err := s.Register(context.Background(), "b@example.com", "password", "", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.CompanyID, b.CompanyID, "every registration founds a company")
	assert.Equal(t, "a@example.com", a.DisplayName)
}

func TestRegister_Errors(t *testing.T) {
	s, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "not-an-email", "password", "", "")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Register(ctx, "a@example.com", "123", "", "")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Register(ctx, "a@example.com", "password", "", "")
	require.NoError(t, err)
	_, err = s.Register(ctx, "A@example.com", "password", "", "")
	assert.ErrorIs(t, err, common.ErrorConflict)
}

func TestLogin_Flows(t *testing.T) {
	s, rm, _ := newUserService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "a@example.com", "password", "A", "Acme")
	require.NoError(t, err)

	pair, got, err := s.Login(ctx, "A@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Contains(t, rm.tokens.tokens, pair.RefreshToken)

	id, err := auth.ParseToken(pair.AccessToken, []byte(testConfig().SecretKey))
	require.NoError(t, err)
	assert.Equal(t, u.Identity(), id)

	_, _, err = s.Login(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, _, err = s.Login(ctx, "ghost@example.com", "password")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	rm.users.getErr = errors.New("db down")
	_, _, err = s.Login(ctx, "a@example.com", "password")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin_TokenStoreFailure(t *testing.T) {
	s, rm, _ := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "a@example.com", "password", "", "")
	require.NoError(t, err)

	rm.tokens.createErr = errors.New("insert failed")
	_, _, err = s.Login(ctx, "a@example.com", "password")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRefreshToken_Success(t *testing.T) {
	s, rm, mock := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "a@example.com", "password", "", "")
	require.NoError(t, err)
	pair, _, err := s.Login(ctx, "a@example.com", "password")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	fresh, err := s.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)
	assert.NotContains(t, rm.tokens.tokens, pair.RefreshToken, "old token is rotated out")
	assert.Contains(t, rm.tokens.tokens, fresh.RefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshToken_Expired(t *testing.T) {
	s, rm, _ := newUserService(t)
	rm.tokens.tokens["old"] = &models.RefreshToken{UserID: "u1", Token: "old", Expires: time.Now().Add(-time.Minute)}

	_, err := s.RefreshToken(context.Background(), "old")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
	assert.Empty(t, rm.tokens.tokens)
}

func TestRefreshToken_Unknown(t *testing.T) {
	s, _, _ := newUserService(t)

	_, err := s.RefreshToken(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefreshToken_RollsBackOnFailure(t *testing.T) {
	s, rm, mock := newUserService(t)
	rm.tokens.tokens["tok"] = &models.RefreshToken{UserID: "missing-user", Token: "tok", Expires: time.Now().Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.RefreshToken(context.Background(), "tok")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpiredTokens(t *testing.T) {
	s, rm, _ := newUserService(t)
	rm.tokens.tokens["a"] = &models.RefreshToken{Expires: time.Now().Add(-time.Hour)}
	rm.tokens.tokens["b"] = &models.RefreshToken{Expires: time.Now().Add(time.Hour)}

	n, err := s.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, rm.tokens.tokens, "b")
}
