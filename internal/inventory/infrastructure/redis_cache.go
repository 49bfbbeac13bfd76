// internal/inventory/infrastructure/redis_cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	redisclient "lager/internal/pkg/redis"

	"lager/internal/inventory/port"
)

const (
	availabilityKeyPrefix = "stock:available:"
	contentionKeyPrefix   = "stock:contention:"

	contentionScriptName = "contention_incr"
)

// contentionScript 累加窗口计数，首次写入时设置窗口过期。
// INCR 与 PEXPIRE 必须原子，否则进程在两步之间崩溃会留下永不过期的计数。
const contentionScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`

// RedisAvailabilityCache 把可用性投影存成 stock:available:{productID}
// 下的 JSON，写后失效由应用层在事务提交后触发。
type RedisAvailabilityCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

func NewRedisAvailabilityCache(client *redisclient.Client, ttl time.Duration) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client, ttl: ttl}
}

func (c *RedisAvailabilityCache) GetView(ctx context.Context, productID string) (*port.AvailabilityView, error) {
	raw, err := c.client.Get(ctx, availabilityKeyPrefix+productID)
	if err != nil {
		return nil, errors.Wrap(err, "get availability view")
	}
	if raw == "" {
		return nil, nil
	}
	var view port.AvailabilityView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		// 缓存内容损坏按未命中处理，下一次 SetView 会覆盖
		return nil, nil
	}
	return &view, nil
}

func (c *RedisAvailabilityCache) SetView(ctx context.Context, productID string, view port.AvailabilityView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return errors.Wrap(err, "marshal availability view")
	}
	return c.client.Set(ctx, availabilityKeyPrefix+productID, payload, c.ttl)
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, availabilityKeyPrefix+productID)
}

// RedisContentionTracker 用滑动窗口计数估计每个商品的预占竞争程度。
type RedisContentionTracker struct {
	client *redisclient.Client
	window time.Duration
}

func NewRedisContentionTracker(client *redisclient.Client, window time.Duration) (*RedisContentionTracker, error) {
	if err := client.LoadScriptFromContent(contentionScriptName, contentionScript); err != nil {
		return nil, err
	}
	return &RedisContentionTracker{client: client, window: window}, nil
}

func (t *RedisContentionTracker) RecordAttempt(ctx context.Context, productID string) (int64, error) {
	result, err := t.client.RunScript(ctx, contentionScriptName,
		[]string{contentionKeyPrefix + productID}, t.window.Milliseconds())
	if err != nil {
		return 0, errors.Wrap(err, "record contention attempt")
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected contention script result type %T", result)
	}
	return count, nil
}
