// Package service provides business logic for authentication and batch
// reconciliation, delegating persistence to repository interfaces.
package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given login exists.
	UserExists(ctx context.Context, login string) (bool, error)
	// RegisterUser creates a new user record with the given login.
	RegisterUser(ctx context.Context, login string) error
}

// AuthService implements registration and bearer-token issuance.
type AuthService struct {
	repo     AuthRepository
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthService constructs an AuthService that signs tokens with secret.
func NewAuthService(repo AuthRepository, secret string) *AuthService {
	return &AuthService{
		repo:     repo,
		secret:   []byte(secret),
		tokenTTL: 30 * 24 * time.Hour,
	}
}

// UserExists checks whether a user with the specified login exists.
func (s *AuthService) UserExists(ctx context.Context, login string) (bool, error) {
	return s.repo.UserExists(ctx, login)
}

// RegisterUser registers a new user with the given login.
func (s *AuthService) RegisterUser(ctx context.Context, login string) error {
	return s.repo.RegisterUser(ctx, login)
}

// IssueToken signs a bearer token carrying the login as its subject.
func (s *AuthService) IssueToken(login string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   login,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	return token.SignedString(s.secret)
}
