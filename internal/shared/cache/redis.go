package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"cvcreator-backend/internal/shared/metrics"
	"cvcreator-backend/internal/shared/telemetry"
)

// Dial connects to redis and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int) (*redisv9.Client, error) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

// envelope carries the absolute deadline next to the value so that sliding
// renewals never extend an entry past it.
type envelope struct {
	Deadline int64  `json:"d"`
	Sliding  int64  `json:"s"`
	Value    []byte `json:"v"`
}

// Redis is a Cache shared across API instances. Redis failures degrade to the loader.
type Redis struct {
	client *redisv9.Client
	prefix string
	now    func() time.Time
	group  singleflight.Group
}

// NewRedis wraps a connected client. Keys are namespaced with prefix.
func NewRedis(client *redisv9.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "cvcreator:access:"
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) GetOrLoad(ctx context.Context, key string, policy Policy, load Loader) ([]byte, error) {
	fullKey := r.prefix + key
	if value, ok := r.get(ctx, fullKey); ok {
		metrics.IncCacheHit()
		return value, nil
	}
	metrics.IncCacheMiss()

	v, err, _ := r.group.Do(fullKey, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		r.set(ctx, fullKey, value, policy.normalize())
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]byte)), nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.prefix + key
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis delete cache keys failed: %w", err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false
	}
	if err != nil {
		telemetry.Warn("cache.redis.get_failed", map[string]any{"key": key, "error": err})
		return nil, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		telemetry.Warn("cache.redis.decode_failed", map[string]any{"key": key, "error": err})
		_ = r.client.Del(ctx, key).Err()
		return nil, false
	}
	ttl, ok := env.renewal(r.now())
	if !ok {
		_ = r.client.Del(ctx, key).Err()
		return nil, false
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		telemetry.Warn("cache.redis.expire_failed", map[string]any{"key": key, "error": err})
	}
	return env.Value, true
}

func (r *Redis) set(ctx context.Context, key string, value []byte, policy Policy) {
	now := r.now()
	env := envelope{
		Deadline: now.Add(policy.Absolute).UnixNano(),
		Sliding:  int64(policy.Sliding),
		Value:    value,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		telemetry.Warn("cache.redis.encode_failed", map[string]any{"key": key, "error": err})
		return
	}
	if err := r.client.Set(ctx, key, payload, policy.Sliding).Err(); err != nil {
		telemetry.Warn("cache.redis.set_failed", map[string]any{"key": key, "error": err})
	}
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal cache envelope failed: %w", err)
	}
	if env.Deadline == 0 {
		return envelope{}, fmt.Errorf("cache envelope missing deadline")
	}
	return env, nil
}

// renewal returns the TTL to apply after a hit: the sliding window clipped to the
// absolute deadline. ok is false when the deadline has passed.
func (e envelope) renewal(now time.Time) (time.Duration, bool) {
	remaining := time.Unix(0, e.Deadline).Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	sliding := time.Duration(e.Sliding)
	if sliding <= 0 {
		return remaining, true
	}
	return minDuration(sliding, remaining), true
}

var _ Cache = (*Redis)(nil)
