package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Conn.Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrClosed is returned when a store or connection is used after Close.
var ErrClosed = errors.New("store closed")

// Store hands out connections to a flat string key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close() error
}

// Conn exposes the key-value primitives over a single acquired connection.
type Conn interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	// Keys enumerates at most limit keys in the backend's native order.
	// Values are not returned.
	Keys(ctx context.Context, limit int) ([]string, error)
	// Close releases the connection back to its Store.
	Close() error
}

// keyBuf returns an empty key slice sized for limit, capped so a large limit
// does not allocate up front.
func keyBuf(limit int) []string {
	return make([]string, 0, min(max(limit, 0), 1024))
}
