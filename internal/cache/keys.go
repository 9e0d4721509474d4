package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sphere/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix         = "user:%d"
	revokedTokenKeyPrefix = "auth:revoked:%s"
)

// UserTTL is short because follower counters change often.
const UserTTL = time.Minute

// generationTTL keeps invalidation counters far longer than any fetch can run.
const generationTTL = time.Hour

func UserKey(userID uint) string {
	return fmt.Sprintf(userKeyPrefix, userID)
}

func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(revokedTokenKeyPrefix, jti)
}

func generationKey(key string) string {
	return key + ":gen"
}

// Invalidate deletes keys and advances their generations, so that a fetch
// already in flight through Aside does not store what it read.
// Failures are logged; the entries expire on their own.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), generationTTL)
		}
		return nil
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// InvalidateUsers drops the cached rows of every given user.
func InvalidateUsers(ctx context.Context, ids ...uint) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, UserKey(id))
	}
	Invalidate(ctx, keys...)
}
