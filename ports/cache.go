package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a thin key-value cache in front of the stores. It is an
// optimization, never a correctness dependency: callers treat any
// error as a miss and fall through to the backing store, and every
// cached value is re-validated against its own expiry/active flags
// after a hit.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Namespace prefixes cache keys per entity kind and fixes the TTL
// policy for that kind.
type Namespace struct {
	Prefix string
	TTL    time.Duration
}

// Key builds a namespaced cache key.
func (n Namespace) Key(parts ...string) string {
	key := n.Prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Cache namespaces and their TTLs.
var (
	SessionCache   = Namespace{Prefix: "session", TTL: 15 * time.Minute}
	ChallengeCache = Namespace{Prefix: "challenge", TTL: 5 * time.Minute}
	ClientCache    = Namespace{Prefix: "client", TTL: 2 * time.Hour}
	RateLimitCache = Namespace{Prefix: "ratelimit", TTL: time.Minute}
)
