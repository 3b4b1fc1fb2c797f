package store

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the durable key-value surface the pipeline and gateway run on.
// Implementations must return pkgerrors.ErrNotFound for missing keys and
// honor per-key TTLs; SetNX must be atomic.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only when the key is absent. Returns true when the write
	// happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key; ttl < 0 means the key has
	// no expiry set.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire resets the key's TTL. Returns false when the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Keys returns all live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	// Name identifies the backend ("redis" or "memory") for health reports.
	Name() string
}

// GetJSON loads key and unmarshals it into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SetJSON marshals v and stores it under key with ttl.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}
