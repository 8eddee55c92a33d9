// Package jobs 定时清理任务: 过期会话、过期链接、过期的频率限制记录和超出保留期的审计事件
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/metrics"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"go.uber.org/zap"
)

// Job 一个周期性执行的清理任务，返回处理的记录数
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Scheduler 每个任务一个 goroutine，ctx 取消后全部退出
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// NewMaintenanceScheduler 按配置注册所有清理任务
func NewMaintenanceScheduler(
	cfg *config.Config,
	sessions session.SessionService,
	links sharelink.LinkService,
	guardService guard.GuardService,
	auditService audit.AuditService,
) *Scheduler {
	retention := cfg.Audit.RetentionDays
	return NewScheduler(
		Job{Name: "session_cleanup", Interval: cfg.Jobs.SessionCleanupInterval, Run: sessions.CleanupExpiredSessions},
		Job{Name: "link_sweep", Interval: cfg.Jobs.LinkSweepInterval, Run: links.ReleaseExpiredAliases},
		Job{Name: "rate_limit_sweep", Interval: cfg.Jobs.RateLimitSweepInterval, Run: guardService.SweepStale},
		Job{Name: "audit_purge", Interval: cfg.Jobs.AuditPurgeInterval, Run: func(ctx context.Context) (int64, error) {
			return auditService.PurgeOlderThan(ctx, retention)
		}},
	)
}

// Start 启动所有任务，不阻塞
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			logger.Warn("清理任务间隔未配置，跳过", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	logger.Info("所有后台清理任务已启动。", zap.Int("jobs", len(s.jobs)))
}

// Wait 等待所有任务退出
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("清理任务已停止", zap.String("job", job.Name))
			return
		case <-ticker.C:
			RunOnce(ctx, job)
		}
	}
}

// RunOnce 执行一次任务并记录结果，单次失败不影响后续调度
func RunOnce(ctx context.Context, job Job) {
	n, err := job.Run(ctx)
	if err != nil {
		logger.Error("清理任务执行失败", zap.String("job", job.Name), zap.Error(err))
		return
	}
	metrics.ObserveSweep(job.Name, n)
	if n > 0 {
		logger.Info("清理任务完成", zap.String("job", job.Name), zap.Int64("count", n))
	}
}
