package lasttag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gate-attendance-backend/internal/apperr"
)

// Redis keeps the slot in one Redis key so every replica sees it.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// NewRedis returns a slot stored under key.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, e Entry) error {
	if e.Tag == "" {
		return apperr.Invalid("rfid tag is required")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: last tag: %v", apperr.ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Take(ctx context.Context, clear bool) (Entry, error) {
	var cmd *redis.StringCmd
	if clear {
		cmd = r.client.GetDel(ctx, r.key)
	} else {
		cmd = r.client.Get(ctx, r.key)
	}
	b, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("%w: no recent tag", apperr.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: last tag: %v", apperr.ErrUnavailable, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("decode last tag: %w", err)
	}
	return e, nil
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}
