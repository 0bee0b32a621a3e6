package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/optionpricer/metrics"
)

// BigCache 实现了 Cache 接口，使用 allegro/bigcache 作为底层存储。
type BigCache struct {
	cache  *bigcache.BigCache
	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewBigCache 创建并返回一个新的 BigCache 实例。
// ttl 是所有缓存项统一的过期时间，maxMB 为 0 表示不限制容量。
// m 为 nil 时不采集命中率。
func NewBigCache(ttl time.Duration, maxMB int, m *metrics.Metrics) (*BigCache, error) {
	config := bigcache.DefaultConfig(ttl)
	config.Shards = 64
	config.MaxEntriesInWindow = 10_000
	config.MaxEntrySize = 512
	config.HardMaxCacheSize = maxMB
	config.CleanWindow = cleanWindow(ttl)
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}

	c := &BigCache{cache: cache}
	if m != nil {
		vec := m.NewCounterVec(prometheus.CounterOpts{
			Name: "market_data_cache_requests_total",
			Help: "Market data cache lookups by result",
		}, []string{"result"})
		c.hits = vec.WithLabelValues("hit")
		c.misses = vec.WithLabelValues("miss")
	}
	return c, nil
}

// cleanWindow 取 TTL 与 1 分钟中的较小值，下限 1 秒。
func cleanWindow(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return max(ttl, time.Second)
	}
	return time.Minute
}

// Get 读取 key 并反序列化到 value（必须是指针）。未命中返回 ErrCacheMiss。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			c.count(c.misses)
			return fmt.Errorf("%w: %s", ErrCacheMiss, key)
		}
		return err
	}
	c.count(c.hits)
	return json.Unmarshal(data, value)
}

// Set 写入一个键值对。bigcache 只支持全局 TTL，expiration 参数被忽略。
func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，不存在的键不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Exists 检查键是否存在。
func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 关闭实例，释放后台清理协程。
func (c *BigCache) Close() error {
	return c.cache.Close()
}

func (c *BigCache) count(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}
