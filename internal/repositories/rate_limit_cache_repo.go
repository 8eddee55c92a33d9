package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/cache"
	"github.com/go-redis/redis/v8"
)

// hitScript 固定窗口计数: 封禁 key 存在时拒绝，否则 INCR，首次计数时设置窗口过期
// KEYS[1] 计数 key, KEYS[2] 封禁 key; ARGV[1] 上限, ARGV[2] 窗口毫秒
var hitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

type blockEntry struct {
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

type rateLimitCacheRepository struct {
	cache cache.Cache
}

var _ RateLimitRepository = (*rateLimitCacheRepository)(nil)

// NewRateLimitCacheRepository 基于 Redis 的频率限制存储，窗口和封禁依赖 key 过期
func NewRateLimitCacheRepository(c cache.Cache) RateLimitRepository {
	return &rateLimitCacheRepository{cache: c}
}

func (r *rateLimitCacheRepository) Hit(ctx context.Context, identifier string, attemptType models.AttemptType, maxAttempts int, window time.Duration, now time.Time) (bool, error) {
	keys := []string{
		cache.GenerateRateLimitKey(identifier, string(attemptType)),
		cache.GenerateBlockKey(identifier, string(attemptType)),
	}
	res, err := r.cache.Eval(ctx, hitScript, keys, maxAttempts, window.Milliseconds())
	if err != nil {
		return false, err
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("频率限制脚本返回了意外的类型 %T", res)
	}
	return allowed == 1, nil
}

func (r *rateLimitCacheRepository) Block(ctx context.Context, identifier string, attemptType models.AttemptType, until time.Time, reason string, now time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := r.cache.Del(ctx, cache.GenerateRateLimitKey(identifier, string(attemptType))); err != nil {
		return err
	}
	return r.cache.Set(ctx, cache.GenerateBlockKey(identifier, string(attemptType)), blockEntry{Until: until, Reason: reason}, ttl)
}

func (r *rateLimitCacheRepository) BlockedUntil(ctx context.Context, identifier string, attemptType models.AttemptType, now time.Time) (*time.Time, error) {
	var entry blockEntry
	err := r.cache.Get(ctx, cache.GenerateBlockKey(identifier, string(attemptType)), &entry)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	if !entry.Until.After(now) {
		return nil, nil
	}
	return &entry.Until, nil
}

func (r *rateLimitCacheRepository) Reset(ctx context.Context, identifier string, attemptType models.AttemptType) error {
	return r.cache.Del(ctx, cache.GenerateRateLimitKey(identifier, string(attemptType)))
}

// DeleteStale Redis 依靠 key 过期自动清理
func (r *rateLimitCacheRepository) DeleteStale(ctx context.Context, before time.Time, now time.Time) (int64, error) {
	return 0, nil
}
