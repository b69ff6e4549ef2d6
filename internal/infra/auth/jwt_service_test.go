package auth

import (
	"testing"
	"time"

	"beacon/config"
	"beacon/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret"

func newTestValidator(t *testing.T) service.AccessTokenValidator {
	t.Helper()

	cfg := &config.Config{}
	cfg.SecretKey.Access = testSecret

	validator, err := NewJWTService(cfg)
	require.NoError(t, err)

	return validator
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(&config.Config{})
	assert.Error(t, err)
}

func TestValidateAccessToken_Valid(t *testing.T) {
	validator := newTestValidator(t)
	userID := uuid.New()

	token, err := signAccessToken(testSecret, userID, time.Minute)
	require.NoError(t, err)

	got, err := validator.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	validator := newTestValidator(t)

	token, err := signAccessToken(testSecret, uuid.New(), -time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateAccessToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidAccessToken)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	validator := newTestValidator(t)

	token, err := signAccessToken("other-secret", uuid.New(), time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateAccessToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidAccessToken)
}

func TestValidateAccessToken_RefreshTokenRejected(t *testing.T) {
	validator := newTestValidator(t)

	claims := jwt.MapClaims{
		"sub":  uuid.New().String(),
		"exp":  time.Now().Add(time.Minute).Unix(),
		"type": "refresh",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = validator.ValidateAccessToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidAccessToken)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	validator := newTestValidator(t)

	_, err := validator.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, service.ErrInvalidAccessToken)
}
