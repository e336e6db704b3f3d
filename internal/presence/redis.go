package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chatrelay:presence:"

// refreshScript extends the key only while it still holds this connection id,
// so a superseded connection's keepalive cannot claim the entry back.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisPublisher stores user -> connection id keys with a TTL.
type RedisPublisher struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisPublisherWithClient(rdb, ttl), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(rdb *redis.Client, ttl time.Duration) *RedisPublisher {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisPublisher{rdb: rdb, ttl: ttl}
}

func presenceKey(userID string) string { return keyPrefix + userID }

// Online sets the user's key with a fresh TTL. Called once the connection is attached.
func (p *RedisPublisher) Online(ctx context.Context, userID, connID string) error {
	if err := p.rdb.Set(ctx, presenceKey(userID), connID, p.ttl).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// Refresh renews the TTL if the key still belongs to connID. Called on every keepalive.
func (p *RedisPublisher) Refresh(ctx context.Context, userID, connID string) error {
	err := refreshScript.Run(ctx, p.rdb, []string{presenceKey(userID)}, connID, p.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// Offline removes the user's key. The gateway drops the user on any disconnect,
// superseded connections included, and the mirror follows it.
func (p *RedisPublisher) Offline(ctx context.Context, userID, _ string) error {
	if err := p.rdb.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

// Lookup returns the recorded connection id for userID.
func (p *RedisPublisher) Lookup(ctx context.Context, userID string) (connID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get presence: %w", err)
	}
	return val, true, nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

var _ Publisher = (*RedisPublisher)(nil)
