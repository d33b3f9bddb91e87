// Copyright 2025 Certen Protocol
//
// RedisCoord implements Coord against go-redis v6, matching the command
// shapes `broadcast_functions.py` uses (zadd/zrangebyscore/sadd/scard/
// smembers/srem/hdel/pipeline).

package coord

import (
	"context"
	"math"
	"strconv"

	"github.com/go-redis/redis"
)

// RedisCoord wraps a go-redis client.
type RedisCoord struct {
	client *redis.Client
}

// NewRedisCoord dials endpoint:port (§6.4 REDIS_ENDPOINT/REDIS_PORT).
func NewRedisCoord(addr string, db int) *RedisCoord {
	return &RedisCoord{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewRedisCoordFromClient wraps an already-constructed client (used by
// tests against miniredis-style fakes wired the same way).
func NewRedisCoordFromClient(c *redis.Client) *RedisCoord {
	return &RedisCoord{client: c}
}

func (r *RedisCoord) ZAdd(_ context.Context, key, member string, score float64) error {
	return r.client.ZAdd(key, redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisCoord) ZRem(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.ZRem(key, args...).Err()
}

func (r *RedisCoord) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error) {
	opt := redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if limit > 0 {
		opt.Count = limit
	}
	zs, err := r.client.ZRangeByScoreWithScores(key, opt).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, len(zs))
	for i, z := range zs {
		out[i] = ScoredMember{Member: z.Member.(string), Score: z.Score}
	}
	return out, nil
}

func (r *RedisCoord) SAdd(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SAdd(key, args...).Err()
}

func (r *RedisCoord) SRem(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SRem(key, args...).Err()
}

func (r *RedisCoord) SCard(_ context.Context, key string) (int64, error) {
	return r.client.SCard(key).Result()
}

func (r *RedisCoord) SMembers(_ context.Context, key string) ([]string, error) {
	return r.client.SMembers(key).Result()
}

func (r *RedisCoord) Get(_ context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCoord) Set(_ context.Context, key, value string) error {
	return r.client.Set(key, value, 0).Err()
}

func (r *RedisCoord) Incr(_ context.Context, key string) (int64, error) {
	return r.client.Incr(key).Result()
}

func (r *RedisCoord) Del(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(keys...).Err()
}

func (r *RedisCoord) HSet(_ context.Context, key, field, value string) error {
	return r.client.HSet(key, field, value).Err()
}

func (r *RedisCoord) HGet(_ context.Context, key, field string) (string, bool, error) {
	v, err := r.client.HGet(key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCoord) HDel(_ context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.client.HDel(key, fields...).Err()
}

func (r *RedisCoord) Pipeline(_ context.Context, ops []Op) error {
	pipe := r.client.TxPipeline()
	for _, op := range ops {
		switch op.Kind {
		case OpSRem:
			if len(op.Members) == 0 {
				continue
			}
			args := make([]interface{}, len(op.Members))
			for i, m := range op.Members {
				args[i] = m
			}
			pipe.SRem(op.Key, args...)
		case OpDel:
			pipe.Del(op.Key)
		case OpSet:
			pipe.Set(op.Key, op.Value, 0)
		case OpZRem:
			pipe.ZRem(op.Key, op.Member)
		case OpZAdd:
			pipe.ZAdd(op.Key, redis.Z{Score: op.Score, Member: op.Member})
		case OpHDel:
			if len(op.Fields) == 0 {
				continue
			}
			pipe.HDel(op.Key, op.Fields...)
		}
	}
	_, err := pipe.Exec()
	return err
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
