// Package idempotency provides a Redis-backed store mapping client-supplied
// Idempotency-Key headers to previously created resource IDs, so a retried
// POST returns the original resource instead of creating a duplicate.
package idempotency

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Header is the request header carrying the client's idempotency key.
const Header = "Idempotency-Key"

// Key extracts the idempotency key from a request, empty when absent.
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Store remembers which resource a key produced. A nil *Store is valid and
// disables idempotency handling, so callers never need to branch on
// configuration.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore connects to Redis at addr. Keys expire after ttl.
func NewStore(addr, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Lookup returns the resource ID previously stored for key, or "" when the
// key is unknown.
func (s *Store) Lookup(ctx context.Context, key string) (string, error) {
	if s == nil || key == "" {
		return "", nil
	}
	id, err := s.client.Get(ctx, s.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "idempotency lookup")
	}
	return id, nil
}

// Remember stores the resource ID for key.
func (s *Store) Remember(ctx context.Context, key, resourceID string) error {
	if s == nil || key == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+":"+key, resourceID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "idempotency remember")
	}
	return nil
}

// Ping verifies connectivity; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
