package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache 通用缓存接口
type Cache interface {
	// Set 写入一个 JSON 值并指定过期时间
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get 读取值并反序列化到 target，key 不存在时返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error

	Del(ctx context.Context, keys ...string) error

	// Eval 在 Redis 中原子执行 Lua 脚本
	Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)

	// XAdd 追加一条 Stream 消息
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// GenerateRateLimitKey 频率限制计数 key
func GenerateRateLimitKey(identifier, attemptType string) string {
	return fmt.Sprintf("ratelimit:%s:%s", attemptType, identifier)
}

// GenerateBlockKey 频率限制封禁 key
func GenerateBlockKey(identifier, attemptType string) string {
	return fmt.Sprintf("ratelimit:block:%s:%s", attemptType, identifier)
}
