package store

import "fmt"

// Open constructs the SessionStore backend named by backend ("memory" or
// "redis"), per spec.md §6's store.backend configuration key.
func Open(backend, redisURL string) (SessionStore, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(redisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
