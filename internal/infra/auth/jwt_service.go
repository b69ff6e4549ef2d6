// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"beacon/config"
	"beacon/internal/domain/service"
)

// jwtService validates access tokens minted by the API servers. This
// service never issues tokens; it only checks the shared-secret signature
// before a socket upgrade.
type jwtService struct {
	accessSecret string
}

// NewJWTService is the constructor for jwtService.
func NewJWTService(cfg *config.Config) (service.AccessTokenValidator, error) {
	if cfg.SecretKey.Access == "" {
		return nil, errors.New("jwt access secret must be provided")
	}

	return &jwtService{accessSecret: cfg.SecretKey.Access}, nil
}

// ValidateAccessToken parses and verifies an access token, returning the
// user it was issued to. Any failure maps to ErrInvalidAccessToken so
// callers cannot leak parser details to the client.
func (s *jwtService) ValidateAccessToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(s.accessSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, service.ErrInvalidAccessToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, service.ErrInvalidAccessToken
	}

	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return uuid.Nil, service.ErrInvalidAccessToken
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, service.ErrInvalidAccessToken
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, service.ErrInvalidAccessToken
	}

	return userID, nil
}

// signAccessToken mints an access token with the given ttl. Kept unexported;
// production tokens come from the API servers, this exists for tests.
func signAccessToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
		"type": "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}
