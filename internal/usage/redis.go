package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Counters are hashes with fields posts, period (YYYYMM) and reset (unix ms).
// They expire well after the cycle ends; an expired key reads as a new cycle.
const (
	redisKeyPrefix = "postpilot:usage:"
	redisRetention = 93 * 24 * time.Hour
)

// consumeScript runs the rollover, check and increment server-side so that
// concurrent requests for one user cannot both pass the check.
//
// KEYS[1] counter key
// ARGV[1] current period, ARGV[2] now (unix ms), ARGV[3] limit (-1 unlimited),
// ARGV[4] retention (ms)
//
// Returns {consumed, posts, reset, rolled_over}.
var consumeScript = redis.NewScript(`
local posts = tonumber(redis.call('HGET', KEYS[1], 'posts') or '0')
local period = tonumber(redis.call('HGET', KEYS[1], 'period') or '0')
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')
local current = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

if period < current then
  redis.call('HSET', KEYS[1], 'posts', 1, 'period', current, 'reset', now)
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return {1, 1, now, 1}
end

if limit >= 0 and posts >= limit then
  return {0, posts, reset, 0}
end

posts = redis.call('HINCRBY', KEYS[1], 'posts', 1)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {1, posts, reset, 0}
`)

// RedisStore keeps counters in Redis. Suitable when several API instances
// share one quota and Postgres should stay off the hot path.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient parses url, applies connection timeouts and verifies the
// server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (s *RedisStore) Backend() string { return BackendRedis }

func redisKey(userID uuid.UUID) string {
	return redisKeyPrefix + userID.String()
}

func (s *RedisStore) Consume(ctx context.Context, userID uuid.UUID, quota int, now time.Time) (domain.ConsumeResult, error) {
	if err := validateQuota(quota); err != nil {
		return domain.ConsumeResult{}, err
	}
	now = now.UTC()

	res, err := consumeScript.Run(ctx, s.client,
		[]string{redisKey(userID)},
		Period(now),
		now.UnixMilli(),
		quota,
		redisRetention.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("redis consume: %w", err)
	}
	if len(res) != 4 {
		return domain.ConsumeResult{}, fmt.Errorf("redis consume: unexpected reply length %d", len(res))
	}

	return domain.ConsumeResult{
		Consumed:     res[0] == 1,
		Used:         res[1],
		MonthlyReset: time.UnixMilli(res[2]).UTC(),
		RolledOver:   res[3] == 1,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, userID uuid.UUID) (domain.UsageRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(userID)).Result()
	if err != nil {
		return domain.UsageRecord{}, fmt.Errorf("redis get usage: %w", err)
	}

	rec := domain.UsageRecord{UserID: userID}
	if len(fields) == 0 {
		return rec, nil
	}

	posts, err := strconv.ParseInt(fields["posts"], 10, 64)
	if err != nil {
		return domain.UsageRecord{}, fmt.Errorf("redis get usage: bad posts field: %w", err)
	}
	resetMs, err := strconv.ParseInt(fields["reset"], 10, 64)
	if err != nil {
		return domain.UsageRecord{}, fmt.Errorf("redis get usage: bad reset field: %w", err)
	}

	reset := time.UnixMilli(resetMs).UTC()
	rec.PostsGenerated = posts
	rec.MonthlyReset = &reset
	return rec, nil
}

func (s *RedisStore) Reset(ctx context.Context, userID uuid.UUID, now time.Time) error {
	now = now.UTC()
	key := redisKey(userID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "posts", 0, "period", Period(now), "reset", now.UnixMilli())
		pipe.PExpire(ctx, key, redisRetention)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis reset usage: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete usage: %w", err)
	}
	return nil
}
