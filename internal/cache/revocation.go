package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers revoked token ids until the tokens would have expired anyway.
type RevocationStore struct {
	rdb redis.Cmdable
}

// NewRevocationStore returns a store backed by rdb. A nil client yields a store
// that never reports a token as revoked.
func NewRevocationStore(rdb redis.Cmdable) *RevocationStore {
	return &RevocationStore{rdb: rdb}
}

// Revoke marks jti revoked for ttl, which should cover the token's remaining lifetime.
// It reports whether this call did the revoking; false means jti was already revoked.
// Without a client, or with nothing left to cover, every call reports true.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if s.rdb == nil || jti == "" || ttl <= 0 {
		return true, nil
	}
	return s.rdb.SetNX(ctx, RevokedTokenKey(jti), 1, ttl).Result()
}

// IsRevoked reports whether jti was revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb == nil || jti == "" {
		return false, nil
	}
	err := s.rdb.Get(ctx, RevokedTokenKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
