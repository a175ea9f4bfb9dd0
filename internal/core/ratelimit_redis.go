package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisNotReady is returned when Redis cannot be reached at startup.
var ErrRedisNotReady = errors.New("redis is not ready")

// ConnectRedis parses url, then pings until the server answers or wait
// elapses.
func ConnectRedis(ctx context.Context, url string, wait time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	client := redis.NewClient(opts)
	for {
		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, errors.Join(ErrRedisNotReady, err)
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// RedisRateLimitStore implements RateLimitStore with one counter per key and
// window, expiring with the window.
type RedisRateLimitStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisRateLimitStore(client redis.Cmdable) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "rl:", now: time.Now}
}

func (s *RedisRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := s.now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)
	redisKey := s.prefix + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireAt(ctx, redisKey, resetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit increment: %w", err)
	}

	count := int(incr.Val())
	return RateLimitResult{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}
