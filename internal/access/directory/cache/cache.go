// Package cache is a Redis read-through cache in front of a role directory.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"medorder/internal/access/directory"
	"medorder/internal/access/metrics"
	"medorder/internal/access/models"
)

// Redis key prefix for cached roles. The principal ID is hashed so raw
// identity-provider subjects never appear in the keyspace.
const roleKeyPrefix = "role:v1:"

// Store caches successful directory hits. Misses and lookup failures are
// passed through uncached, and any cache error degrades to the directory.
type Store struct {
	client  *redis.Client
	next    directory.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New wraps next with a cache whose entries expire after ttl.
func New(client *redis.Client, next directory.Store, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) FindRole(ctx context.Context, principalID string) (models.Role, error) {
	key := roleKey(principalID)
	cached, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil && models.Role(cached).IsValid():
		s.metrics.IncCacheLookup(metrics.CacheHit)
		return models.Role(cached), nil
	case err == nil, errors.Is(err, redis.Nil):
		s.metrics.IncCacheLookup(metrics.CacheMiss)
	default:
		s.metrics.IncCacheLookup(metrics.CacheError)
		s.logger.WarnContext(ctx, "role cache read failed", "error", err)
	}

	role, err := s.next.FindRole(ctx, principalID)
	if err != nil {
		return "", err
	}
	if role.IsValid() {
		if err := s.client.Set(ctx, key, string(role), s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "role cache write failed", "error", err)
		}
	}
	return role, nil
}

// Invalidate drops the cached role so a role change applies on the next request.
func (s *Store) Invalidate(ctx context.Context, principalID string) error {
	return s.client.Del(ctx, roleKey(principalID)).Err()
}

func roleKey(principalID string) string {
	sum := blake2b.Sum256([]byte(principalID))
	return roleKeyPrefix + hex.EncodeToString(sum[:])
}
