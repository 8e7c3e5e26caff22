package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/localmart/internal/readmodel"
	"github.com/redis/go-redis/v9"
)

// OrderCache holds single-order read models in front of the read store.
// Entries are versioned: Set never replaces a newer version, and
// Invalidate leaves a marker so a reader still holding an older copy
// cannot put it back.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*readmodel.OrderReadModel, bool, error)
	Set(ctx context.Context, order *readmodel.OrderReadModel) error
	Invalidate(ctx context.Context, orderID string, version int) error
}

// Each order is a hash with a version field and, while cached, an order
// field holding the JSON read model.
var (
	setScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'order', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

	invalidateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1])
redis.call('HDEL', KEYS[1], 'order')
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)
)

type RedisOrderCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisOrderCache(client *redis.Client, serviceName string, ttl time.Duration) *RedisOrderCache {
	return &RedisOrderCache{client: client, prefix: serviceName, ttl: ttl}
}

// Connect opens a client for addr and checks it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *RedisOrderCache) key(orderID string) string {
	return fmt.Sprintf("%s:order:%s", c.prefix, orderID)
}

func (c *RedisOrderCache) Get(ctx context.Context, orderID string) (*readmodel.OrderReadModel, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(orderID), "order").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var o readmodel.OrderReadModel
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false, fmt.Errorf("decode cached order %s: %w", orderID, err)
	}
	return &o, true, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, order *readmodel.OrderReadModel) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return setScript.Run(ctx, c.client, []string{c.key(order.ID)}, order.Version, raw, c.ttl.Milliseconds()).Err()
}

func (c *RedisOrderCache) Invalidate(ctx context.Context, orderID string, version int) error {
	return invalidateScript.Run(ctx, c.client, []string{c.key(orderID)}, version, c.ttl.Milliseconds()).Err()
}

// Noop is an OrderCache that never holds anything. It is used when no
// Redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*readmodel.OrderReadModel, bool, error) {
	return nil, false, nil
}

func (Noop) Set(context.Context, *readmodel.OrderReadModel) error { return nil }

func (Noop) Invalidate(context.Context, string, int) error { return nil }
