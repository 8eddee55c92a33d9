// Package testutil 测试共用的数据库和时钟工具
package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/setup"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Uint64

// NewDB 创建一个独立的内存 SQLite 数据库并完成迁移
// 单连接: SQLite 共享缓存模式下多连接并发写会报表锁错误
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	logger.SetLogger(zap.NewNop())

	dsn := fmt.Sprintf("file:gallery_access_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := setup.InitDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	t.Cleanup(func() { setup.CloseDatabase(db) })
	return db
}

// Clock 可手动推进的测试时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
