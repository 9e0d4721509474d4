package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"sphere/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

var errGenerationMoved = errors.New("cache: key invalidated during fetch")

// Aside tries Redis first and on a miss calls fetch, which must populate dest,
// then stores dest with ttl. Redis failures degrade to calling fetch.
//
// dest is only stored if key was not invalidated while fetch ran; otherwise
// fetch may have read the row before the write that invalidated it.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := GetJSON(ctx, key, dest)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if found {
		return nil
	}

	gen, genErr := generation(ctx, key)
	if err := fetch(); err != nil {
		return err
	}
	if genErr != nil {
		return nil
	}

	if err := setIfGeneration(ctx, key, gen, dest, ttl); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

// generation returns the invalidation counter of key, "" if it was never invalidated.
func generation(ctx context.Context, key string) (string, error) {
	if client == nil {
		return "", nil
	}
	gen, err := client.Get(ctx, generationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// setIfGeneration stores v under key unless the generation of key moved past gen.
func setIfGeneration(ctx context.Context, key, gen string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	genKey := generationKey(key)
	err = client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errGenerationMoved) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}
