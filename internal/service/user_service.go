package service

import (
	"context"
	"errors"

	"kvusers/internal/domain"
	"kvusers/internal/repository"
)

// DefaultListLimit caps how many users a single list call returns.
const DefaultListLimit = 10

// ErrInvalidUsername indicates the username is missing.
var ErrInvalidUsername = errors.New("username is required")

// UserService describes user lifecycle operations.
type UserService interface {
	CreateUser(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type userService struct {
	users     repository.UserRepository
	listLimit int
}

func NewUserService(users repository.UserRepository, listLimit int) UserService {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &userService{
		users:     users,
		listLimit: listLimit,
	}
}

// CreateUser stores the username as given; only an empty username is
// rejected, before the store is touched.
func (s *userService) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	if username == "" {
		return nil, ErrInvalidUsername
	}
	return s.users.Create(ctx, username)
}

func (s *userService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx, s.listLimit)
}
