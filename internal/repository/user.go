package repository

import (
	"context"
	"errors"

	"kvusers/internal/domain"
)

var (
	// ErrStoreUnavailable indicates no connection to the store could be acquired.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreWrite indicates the store rejected or failed a write.
	ErrStoreWrite = errors.New("store write failed")
	// ErrStoreRead indicates a key enumeration or fetch failed.
	ErrStoreRead = errors.New("store read failed")
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Create(ctx context.Context, username string) (*domain.User, error)
	// List returns at most limit users in store enumeration order. It is not
	// a snapshot: keys are enumerated first and fetched one by one after.
	List(ctx context.Context, limit int) ([]domain.User, error)
}
