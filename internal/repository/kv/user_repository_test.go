package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvusers/internal/repository"
	"kvusers/internal/storage"
)

// faultyStore wraps a MemoryStore and injects failures per primitive.
type faultyStore struct {
	*storage.MemoryStore

	acquireErr error
	setErr     error
	keysErr    error
	getErrOn   map[string]error
	extraKeys  []string
	afterKeys  func(keys []string)

	acquired atomic.Int32
	released atomic.Int32
	gets     atomic.Int32
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *faultyStore) Acquire(ctx context.Context) (storage.Conn, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	conn, err := s.MemoryStore.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.acquired.Add(1)
	return &faultyConn{Conn: conn, store: s}, nil
}

type faultyConn struct {
	storage.Conn
	store *faultyStore
}

func (c *faultyConn) Set(ctx context.Context, key, value string) error {
	if c.store.setErr != nil {
		return c.store.setErr
	}
	return c.Conn.Set(ctx, key, value)
}

func (c *faultyConn) Get(ctx context.Context, key string) (string, error) {
	c.store.gets.Add(1)
	if err, ok := c.store.getErrOn[key]; ok {
		return "", err
	}
	return c.Conn.Get(ctx, key)
}

func (c *faultyConn) Keys(ctx context.Context, limit int) ([]string, error) {
	if c.store.keysErr != nil {
		return nil, c.store.keysErr
	}
	keys, err := c.Conn.Keys(ctx, limit)
	if err != nil {
		return nil, err
	}
	keys = append(keys, c.store.extraKeys...)
	if c.store.afterKeys != nil {
		c.store.afterKeys(keys)
	}
	return keys, nil
}

func (c *faultyConn) Close() error {
	c.store.released.Add(1)
	return c.Conn.Close()
}

func seedUsers(t *testing.T, repo repository.UserRepository, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u, err := repo.Create(context.Background(), fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	return ids
}

func TestCreate_StoresUsernameUnderRandomUUID(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	repo := NewUserRepository(store)

	user, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	id, err := uuid.Parse(user.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Equal(t, id.String(), user.ID)

	conn, err := store.MemoryStore.Acquire(ctx)
	require.NoError(t, err)
	got, err := conn.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestCreate_IdentifiersAreDistinct(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	repo := NewUserRepository(store)

	const n = 200
	seen := make(map[string]string, n)
	for i := 0; i < n; i++ {
		name := "same-name"
		if i%2 == 0 {
			name = fmt.Sprintf("name-%d", i)
		}
		u, err := repo.Create(ctx, name)
		require.NoError(t, err)
		_, dup := seen[u.ID]
		require.False(t, dup, "duplicate id %s", u.ID)
		seen[u.ID] = name
	}

	conn, err := store.MemoryStore.Acquire(ctx)
	require.NoError(t, err)
	for id, name := range seen {
		got, err := conn.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}
}

func TestCreate_ConcurrentCallsAllSucceed(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(context.Background(), fmt.Sprintf("u%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, store.Len())
}

func TestCreate_UnavailableStore(t *testing.T) {
	store := newFaultyStore()
	store.acquireErr = errors.New("connection refused")
	repo := NewUserRepository(store)

	_, err := repo.Create(context.Background(), "alice")
	require.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.ErrorContains(t, err, "connection refused")
	assert.Zero(t, store.Len())
}

func TestCreate_WriteFailure(t *testing.T) {
	store := newFaultyStore()
	store.setErr = errors.New("READONLY")
	repo := NewUserRepository(store)

	user, err := repo.Create(context.Background(), "alice")
	require.ErrorIs(t, err, repository.ErrStoreWrite)
	assert.NotErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.Nil(t, user)
	assert.Equal(t, store.acquired.Load(), store.released.Load())
}

func TestCreate_GeneratorFailure(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepositoryWithIDs(store, func() (uuid.UUID, error) {
		return uuid.Nil, errors.New("entropy exhausted")
	})

	_, err := repo.Create(context.Background(), "alice")
	assert.ErrorContains(t, err, "entropy exhausted")
	assert.Zero(t, store.Len())
}

func TestCreate_UsesInjectedGenerator(t *testing.T) {
	fixed := uuid.MustParse("6f1c1c0e-8d0a-4b8e-9f51-3f7b0c3d2a11")
	repo := NewUserRepositoryWithIDs(newFaultyStore(), func() (uuid.UUID, error) { return fixed, nil })

	user, err := repo.Create(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, fixed.String(), user.ID)
}

func TestList_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newFaultyStore())

	created, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	users, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, *created, users[0])
}

func TestList_FollowsEnumerationOrder(t *testing.T) {
	repo := NewUserRepository(newFaultyStore())
	ids := seedUsers(t, repo, 4)

	users, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, users, 4)
	for i, u := range users {
		assert.Equal(t, ids[i], u.ID)
		assert.Equal(t, fmt.Sprintf("user-%d", i), u.Username)
	}
}

func TestList_NeverExceedsLimit(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)
	seedUsers(t, repo, 15)

	users, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, users, 10)
	assert.EqualValues(t, 10, store.gets.Load())
}

func TestList_TruncatesOverlongEnumeration(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)
	seedUsers(t, repo, 3)
	store.extraKeys = []string{"x", "y"}

	users, err := repo.List(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestList_OneFailedFetchFailsWholeList(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)
	ids := seedUsers(t, repo, 5)
	store.getErrOn = map[string]error{ids[2]: errors.New("i/o timeout")}

	users, err := repo.List(context.Background(), 10)
	require.ErrorIs(t, err, repository.ErrStoreRead)
	assert.ErrorContains(t, err, ids[2])
	assert.Nil(t, users)
	assert.EqualValues(t, 3, store.gets.Load())
}

func TestList_KeyRemovedBetweenEnumerationAndFetch(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)
	ids := seedUsers(t, repo, 3)
	store.afterKeys = func([]string) { store.Delete(ids[1]) }

	users, err := repo.List(context.Background(), 10)
	require.ErrorIs(t, err, repository.ErrStoreRead)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	assert.Nil(t, users)
}

func TestList_EnumerationFailure(t *testing.T) {
	store := newFaultyStore()
	store.keysErr = errors.New("LOADING")
	repo := NewUserRepository(store)

	_, err := repo.List(context.Background(), 10)
	assert.ErrorIs(t, err, repository.ErrStoreRead)
	assert.EqualValues(t, 0, store.gets.Load())
}

func TestList_UnavailableStore(t *testing.T) {
	store := newFaultyStore()
	store.acquireErr = errors.New("dial tcp: timeout")
	repo := NewUserRepository(store)

	_, err := repo.List(context.Background(), 10)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestList_EmptyStore(t *testing.T) {
	users, err := NewUserRepository(newFaultyStore()).List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestList_NonPositiveLimitSkipsStore(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)

	users, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Zero(t, store.acquired.Load())
}

func TestConnectionsAreReleased(t *testing.T) {
	store := newFaultyStore()
	repo := NewUserRepository(store)
	ids := seedUsers(t, repo, 3)
	_, err := repo.List(context.Background(), 10)
	require.NoError(t, err)

	store.getErrOn = map[string]error{ids[0]: errors.New("boom")}
	_, err = repo.List(context.Background(), 10)
	require.Error(t, err)

	assert.EqualValues(t, 5, store.acquired.Load())
	assert.Equal(t, store.acquired.Load(), store.released.Load())
}
