// Package auth handles account registration and credential checks.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"courtbook/internal/database"
	"courtbook/internal/models"
)

// ErrInvalidCredentials is returned for any failed login. It deliberately
// does not distinguish unknown user from wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store persists accounts.
type Store interface {
	CreateUser(ctx context.Context, u *models.User, passwordHash string) (int64, error)
	UserByUsername(ctx context.Context, username string) (*models.User, string, error)
}

// Service hashes passwords and checks credentials against the store.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService constructs the auth service.
func NewService(store Store, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates a new account with a bcrypt password hash. The role is
// forced to user; admins are promoted out of band.
func (s *Service) Register(ctx context.Context, u *models.User, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	u.Role = models.RoleUser
	id, err := s.store.CreateUser(ctx, u, string(hash))
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("user_id", id).Str("username", u.Username).Msg("user registered")
	return id, nil
}

// Authenticate verifies a username/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, hash, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		s.logger.Warn().Str("username", username).Msg("failed login attempt")
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
