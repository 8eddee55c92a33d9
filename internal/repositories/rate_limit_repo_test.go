package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/cache"
	"github.com/3Eeeecho/gallery-access/internal/setup"
	"github.com/3Eeeecho/gallery-access/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 两种后端共用的行为
func runRateLimitContract(t *testing.T, repo RateLimitRepository, now time.Time) {
	ctx := context.Background()
	id := "198.51.100.7:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := repo.Hit(ctx, id, models.AttemptPassword, 3, time.Minute, now)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := repo.Hit(ctx, id, models.AttemptPassword, 3, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同类型互不影响
	ok, err = repo.Hit(ctx, id, models.AttemptLinkRedeem, 3, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Reset(ctx, id, models.AttemptPassword))
	ok, err = repo.Hit(ctx, id, models.AttemptPassword, 3, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)

	until, err := repo.BlockedUntil(ctx, id, models.AttemptBruteForce, now)
	require.NoError(t, err)
	assert.Nil(t, until)

	blockUntil := now.Add(time.Hour)
	require.NoError(t, repo.Block(ctx, id, models.AttemptBruteForce, blockUntil, "brute_force", now))
	until, err = repo.BlockedUntil(ctx, id, models.AttemptBruteForce, now)
	require.NoError(t, err)
	require.NotNil(t, until)
	assert.WithinDuration(t, blockUntil, *until, time.Second)

	ok, err = repo.Hit(ctx, id, models.AttemptBruteForce, 100, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok, "blocked identifier must not be allowed")
}

func TestRateLimitDBRepository(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	runRateLimitContract(t, NewRateLimitDBRepository(testutil.NewDB(t)), now)
}

func TestRateLimitDBRepository_WindowAndSweep(t *testing.T) {
	repo := NewRateLimitDBRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ok, err := repo.Hit(ctx, "a", models.AttemptPassword, 1, time.Minute, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Hit(ctx, "a", models.AttemptPassword, 1, time.Minute, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	// 窗口结束后重新计数
	later := now.Add(time.Minute)
	ok, err = repo.Hit(ctx, "a", models.AttemptPassword, 1, time.Minute, later)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Block(ctx, "b", models.AttemptBruteForce, now.Add(72*time.Hour), "brute_force", now))

	// 只清理未封禁的旧记录
	sweepAt := now.Add(48 * time.Hour)
	n, err := repo.DeleteStale(ctx, sweepAt.Add(-24*time.Hour), sweepAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	until, err := repo.BlockedUntil(ctx, "b", models.AttemptBruteForce, sweepAt)
	require.NoError(t, err)
	assert.NotNil(t, until)
}

func TestRateLimitCacheRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := newCacheRateLimitRepo(t, mr.Addr())
	runRateLimitContract(t, repo, time.Now().UTC())
}

func TestRateLimitCacheRepository_KeysExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := newCacheRateLimitRepo(t, mr.Addr())
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		ok, err := repo.Hit(ctx, "ip-window", models.AttemptLinkRedeem, 2, time.Minute, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repo.Hit(ctx, "ip-window", models.AttemptLinkRedeem, 2, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// 窗口到期后计数 key 被删除
	mr.FastForward(time.Minute + time.Second)
	ok, err = repo.Hit(ctx, "ip-window", models.AttemptLinkRedeem, 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Block(ctx, "ip-block", models.AttemptBruteForce, now.Add(time.Hour), "brute_force", now))
	ok, err = repo.Hit(ctx, "ip-block", models.AttemptBruteForce, 10, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// 封禁 key 的 TTL 与封禁截止时间一致
	mr.FastForward(time.Hour + time.Second)
	until, err := repo.BlockedUntil(ctx, "ip-block", models.AttemptBruteForce, now)
	require.NoError(t, err)
	assert.Nil(t, until)
	ok, err = repo.Hit(ctx, "ip-block", models.AttemptBruteForce, 10, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

// 设置 REDIS_ADDR 时额外对真实 Redis 跑一遍
func TestRateLimitCacheRepository_RealRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	runRateLimitContract(t, newCacheRateLimitRepo(t, addr), time.Now().UTC())
}

func newCacheRateLimitRepo(t *testing.T, addr string) RateLimitRepository {
	t.Helper()
	client, err := setup.InitRedis(context.Background(), &config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { setup.CloseRedis(client) })
	return NewRateLimitCacheRepository(cache.NewRedisCache(client))
}
