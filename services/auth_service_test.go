package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markwoz/kart-league/models"
)

func TestRegisterAndLogin(t *testing.T) {
	service := NewAuthService(newMemPlayerRepo(), "test-secret")

	player, err := service.Register(context.Background(), "ayla", "Ayla@Example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "ayla@example.com", player.Email)
	assert.Equal(t, models.RolePlayer, player.Role)
	assert.NotEqual(t, "hunter2hunter2", player.PasswordHash)

	token, logged, err := service.Login(context.Background(), "ayla@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, player.ID, logged.ID)

	claims, err := service.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, player.ID, claims.PlayerID)
	assert.Equal(t, models.RolePlayer, claims.Role)
}

func TestRegister_Validation(t *testing.T) {
	service := NewAuthService(newMemPlayerRepo(), "test-secret")

	_, err := service.Register(context.Background(), "", "a@b.c", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrNicknameRequired)

	_, err = service.Register(context.Background(), "ayla", "a@b.c", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = service.Register(context.Background(), "ayla", "not-an-email", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = service.Register(context.Background(), "ayla", "a@b.c", "hunter2hunter2")
	require.NoError(t, err)
	_, err = service.Register(context.Background(), "other", "a@b.c", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAuthEmailTaken)
	_, err = service.Register(context.Background(), "ayla", "x@y.z", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	service := NewAuthService(newMemPlayerRepo(), "test-secret")
	_, err := service.Register(context.Background(), "ayla", "a@b.c", "hunter2hunter2")
	require.NoError(t, err)

	_, _, err = service.Login(context.Background(), "a@b.c", "wrong-password")
	assert.ErrorIs(t, err, ErrAuthInvalidCredentials)

	_, _, err = service.Login(context.Background(), "nobody@b.c", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAuthInvalidCredentials)
}

func TestParseToken_RejectsForeignSignature(t *testing.T) {
	issuer := NewAuthService(newMemPlayerRepo(), "secret-one")
	verifier := NewAuthService(newMemPlayerRepo(), "secret-two")

	_, err := issuer.Register(context.Background(), "ayla", "a@b.c", "hunter2hunter2")
	require.NoError(t, err)
	token, _, err := issuer.Login(context.Background(), "a@b.c", "hunter2hunter2")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.ErrorIs(t, err, ErrAuthInvalidCredentials)
}
