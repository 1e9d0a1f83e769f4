package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/webauth-service/internal/core/domain"
)

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// consumeFlashesLua reads the whole queue and deletes it in one step, so a
// flash is observed by exactly one response.
var consumeFlashesLua = redis.NewScript(`
local vals = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return vals
`)

// RedisFlashStore implements domain.FlashStore on Redis lists keyed by
// session token, with a TTL so abandoned sessions leave no garbage behind.
type RedisFlashStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFlashStore creates a RedisFlashStore. ttl bounds how long an unread
// flash survives; it should match the session max age.
func NewFlashStore(client *redis.Client, ttl time.Duration) *RedisFlashStore {
	return &RedisFlashStore{client: client, ttl: ttl}
}

func flashKey(sessionToken string) string {
	return "flash:" + sessionToken
}

// Push appends a flash to the session's queue.
func (s *RedisFlashStore) Push(ctx context.Context, sessionToken string, flash domain.Flash) error {
	payload, err := json.Marshal(flash)
	if err != nil {
		return fmt.Errorf("marshal flash: %w", err)
	}

	key := flashKey(sessionToken)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push flash: %w", err)
	}
	return nil
}

// Consume returns all queued flashes in push order and clears the queue.
func (s *RedisFlashStore) Consume(ctx context.Context, sessionToken string) ([]domain.Flash, error) {
	res, err := consumeFlashesLua.Run(ctx, s.client, []string{flashKey(sessionToken)}).Result()
	if err != nil {
		return nil, fmt.Errorf("consume flashes: %w", err)
	}

	rawVals, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected consume response type %T", res)
	}

	flashes := make([]domain.Flash, 0, len(rawVals))
	for _, v := range rawVals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var f domain.Flash
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			// A corrupt entry is dropped rather than failing the render.
			continue
		}
		flashes = append(flashes, f)
	}

	return flashes, nil
}
