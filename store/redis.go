package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/yourusername/pointledger/core"
)

// RedisStore keeps score sets in sorted sets and logs in hashes
type RedisStore struct {
	client redis.UniversalClient
	prefix string // Prepended to every Redis key
}

// Ensure RedisStore implements the store interfaces
var (
	_ ScoreStore = (*RedisStore)(nil)
	_ LogStore   = (*RedisStore)(nil)
	_ Reaper     = (*RedisStore)(nil)
)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
	Prefix   string // Optional key prefix (e.g., "pointledger:")
}

// incrExistingScript increments a member only if it already exists.
// ZINCRBY alone would create it.
var incrExistingScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return false
end
return redis.call('ZINCRBY', KEYS[1], ARGV[2], ARGV[1])
`)

// incrWithinScript checks existence and bounds and increments in one step.
// ARGV: member, delta, min, max
var incrWithinScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not current then
	return {'missing', ''}
end
local value = tonumber(current)
if not value then
	return {'corrupt', current}
end
local updated = value + tonumber(ARGV[2])
if updated > tonumber(ARGV[4]) then
	return {'above', tostring(updated)}
end
if updated < tonumber(ARGV[3]) then
	return {'below', tostring(updated)}
end
return {'applied', redis.call('ZINCRBY', KEYS[1], ARGV[2], ARGV[1])}
`)

// reapScript writes a tombstone for every member in range, then removes them.
// KEYS: set, log. ARGV: min, max, record
var reapScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[2])
for _, member in ipairs(members) do
	redis.call('HSET', KEYS[2], member, ARGV[3])
end
return redis.call('ZREMRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[2])
`)

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisStoreFromClient(client, config.Prefix)
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// AddIfAbsent inserts member with ZADD NX
func (s *RedisStore) AddIfAbsent(ctx context.Context, set, member string, score float64) (bool, error) {
	added, err := s.client.ZAddNX(ctx, s.key(set), redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// Score reads a score with ZSCORE. Sorted-set scores are always numeric.
func (s *RedisStore) Score(ctx context.Context, set, member string) (string, bool, error) {
	score, err := s.client.ZScore(ctx, s.key(set), member).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return core.FormatScore(score), true, nil
}

// IncrBy adds delta to an existing member
func (s *RedisStore) IncrBy(ctx context.Context, set, member string, delta float64) (string, bool, error) {
	raw, err := incrExistingScript.Run(ctx, s.client, []string{s.key(set)}, member, core.FormatScore(delta)).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

// IncrWithin adds delta atomically when the result stays inside bounds
func (s *RedisStore) IncrWithin(ctx context.Context, set, member string, delta float64, bounds core.Bounds) (IncrResult, error) {
	reply, err := incrWithinScript.Run(ctx, s.client, []string{s.key(set)},
		member,
		core.FormatScore(delta),
		core.FormatScore(bounds.Min),
		core.FormatScore(bounds.Max),
	).StringSlice()
	if err != nil {
		return IncrResult{}, err
	}
	if len(reply) != 2 {
		return IncrResult{}, fmt.Errorf("unexpected script reply %q", reply)
	}

	var outcome IncrOutcome
	switch reply[0] {
	case "applied":
		outcome = IncrApplied
	case "missing":
		outcome = IncrMissing
	case "above":
		outcome = IncrAbove
	case "below":
		outcome = IncrBelow
	case "corrupt":
		outcome = IncrCorrupt
	default:
		return IncrResult{}, fmt.Errorf("unexpected script outcome %q", reply[0])
	}
	return IncrResult{Outcome: outcome, Raw: reply[1]}, nil
}

// Remove deletes member with ZREM
func (s *RedisStore) Remove(ctx context.Context, set, member string) (int64, error) {
	return s.client.ZRem(ctx, s.key(set), member).Result()
}

// RangeByScore returns members within r using ZRANGEBYSCORE WITHSCORES
func (s *RedisStore) RangeByScore(ctx context.Context, set string, r core.Range, offset, count int64) ([]core.Pair, error) {
	if count == 0 {
		return []core.Pair{}, nil
	}
	opt := &redis.ZRangeBy{
		Min: r.Low.String(),
		Max: r.High.String(),
	}
	// go-redis omits LIMIT when both are zero
	if offset > 0 || count > 0 {
		opt.Offset = offset
		opt.Count = count
	}

	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.key(set), opt).Result()
	if err != nil {
		return nil, err
	}

	pairs := make([]core.Pair, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		pairs = append(pairs, core.Pair{Key: member, Value: z.Score})
	}
	return pairs, nil
}

// RemoveRangeByScore deletes all members within r
func (s *RedisStore) RemoveRangeByScore(ctx context.Context, set string, r core.Range) (int64, error) {
	return s.client.ZRemRangeByScore(ctx, s.key(set), r.Low.String(), r.High.String()).Result()
}

// ReapRange tombstones and removes members within r in a single script
func (s *RedisStore) ReapRange(ctx context.Context, set string, r core.Range, log, record string) (int64, error) {
	return reapScript.Run(ctx, s.client, []string{s.key(set), s.key(log)},
		r.Low.String(),
		r.High.String(),
		record,
	).Int64()
}

// UnionStore runs ZUNIONSTORE with WEIGHTS
func (s *RedisStore) UnionStore(ctx context.Context, dest string, sources []string, weights []float64) (int64, error) {
	keys := make([]string, len(sources))
	for i, name := range sources {
		keys[i] = s.key(name)
	}
	return s.client.ZUnionStore(ctx, s.key(dest), &redis.ZStore{
		Keys:    keys,
		Weights: weights,
	}).Result()
}

// SetField writes a log record with HSET
func (s *RedisStore) SetField(ctx context.Context, log, field, value string) error {
	return s.client.HSet(ctx, s.key(log), field, value).Err()
}

// GetField reads a log record with HGET
func (s *RedisStore) GetField(ctx context.Context, log, field string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.key(log), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// HasField checks a log record with HEXISTS
func (s *RedisStore) HasField(ctx context.Context, log, field string) (bool, error) {
	return s.client.HExists(ctx, s.key(log), field).Result()
}

// Clear removes every key under the store's prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.prefix == "" {
		return errors.New("refusing to clear a redis store without a key prefix")
	}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
