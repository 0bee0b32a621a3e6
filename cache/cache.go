// Package cache 提供了缓存抽象和基于 bigcache 的本地内存实现。
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 表示键不存在或已过期。
var ErrCacheMiss = errors.New("cache miss")

// Cache 定义了通用的缓存接口。值以 JSON 编码存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
