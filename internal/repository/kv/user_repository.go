package kv

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"kvusers/internal/domain"
	"kvusers/internal/repository"
	"kvusers/internal/storage"
)

// IDGenerator produces new user identifiers.
type IDGenerator func() (uuid.UUID, error)

type UserRepository struct {
	store storage.Store
	newID IDGenerator
}

func NewUserRepository(store storage.Store) repository.UserRepository {
	return NewUserRepositoryWithIDs(store, uuid.NewRandom)
}

func NewUserRepositoryWithIDs(store storage.Store, newID IDGenerator) repository.UserRepository {
	return &UserRepository{store: store, newID: newID}
}

func (r *UserRepository) Create(ctx context.Context, username string) (*domain.User, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}
	key := id.String()

	if err := conn.Set(ctx, key, username); err != nil {
		return nil, fmt.Errorf("%w: set %s: %w", repository.ErrStoreWrite, key, err)
	}

	return &domain.User{ID: key, Username: username}, nil
}

// List enumerates keys, then issues one Get per key. Any failed fetch,
// including a key removed after enumeration, fails the whole call.
func (r *UserRepository) List(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		return []domain.User{}, nil
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	keys, err := conn.Keys(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate keys: %w", repository.ErrStoreRead, err)
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}

	users := make([]domain.User, 0, len(keys))
	for _, key := range keys {
		username, err := conn.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %w", repository.ErrStoreRead, key, err)
		}
		users = append(users, domain.User{ID: key, Username: username})
	}
	return users, nil
}

func (r *UserRepository) acquire(ctx context.Context) (storage.Conn, error) {
	conn, err := r.store.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
	}
	return conn, nil
}
