package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotVerified    = errors.New("user is not verified")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrUnknownRole        = errors.New("unknown role")
)

// Service implements account registration, login and password changes.
type Service struct {
	users  repository.UserRepository
	tokens *TokenManager
}

func NewService(users repository.UserRepository, tokens *TokenManager) *Service {
	return &Service{users: users, tokens: tokens}
}

// Tokens exposes the manager used to verify bearer tokens.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Register creates a user with role. Accounts created by an administrator
// are verified immediately.
func (s *Service) Register(ctx context.Context, username, password, role string) (*model.User, error) {
	if role == "" {
		role = RoleViewer
	}
	if !KnownRole(role) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Info("User registered", logger.String("username", username), logger.String("role", role))
	return user, nil
}

// Login checks the credentials of a verified user and returns a token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !user.IsVerified {
		return "", ErrUserNotVerified
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.GenerateToken(user.ID, user.Username, user.Role)
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrWrongPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	logger.Info("Password changed", logger.String("userId", userID))
	return nil
}

// Seed creates a verified admin when no user exists. It reports whether a
// user was created.
func (s *Service) Seed(ctx context.Context, username, password string) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		logger.Info("Users already exist in the database")
		return false, nil
	}
	if username == "" || password == "" {
		return false, errors.New("DEFAULT_USERNAME and DEFAULT_PASSWORD are required to seed")
	}
	if _, err := s.Register(ctx, username, password, RoleAdmin); err != nil {
		return false, err
	}
	logger.Info("Default user created", logger.String("username", username))
	return true, nil
}
