package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Get when a key is not present.
var ErrCacheMiss = errors.New("cache: key not found")

// CacheProvider is the shared cache used to soften catalog backend reads.
type CacheProvider interface {
	// Get retrieves a value, returning ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an expiration in seconds.
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error
}
