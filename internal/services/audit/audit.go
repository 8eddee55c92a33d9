package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/metrics"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"go.uber.org/zap"
)

// 次要 sink 单次写入的超时
const sinkTimeout = 2 * time.Second

// 分批归档清理时每批的条数
const purgeBatchSize = 1000

// Event 待记录的安全事件
type Event struct {
	Type      models.EventType
	Severity  models.Severity
	IP        string
	UserAgent string
	GalleryID *uint64
	Details   map[string]any
}

// Sink 审计事件的镜像输出，数据库之外的副本
type Sink interface {
	Name() string
	Write(ctx context.Context, event *models.AuditEvent) error
}

// Archiver 在清理前保存过期事件
type Archiver interface {
	Archive(ctx context.Context, events []models.AuditEvent) error
}

// AuditService 安全审计日志
type AuditService interface {
	// LogEvent 记录事件，写入失败只记日志和计数，不影响调用方
	LogEvent(ctx context.Context, e Event)
	// CountFailuresSince 统计某 IP 自 since 以来的失败次数
	CountFailuresSince(ctx context.Context, ip string, since time.Time) (int64, error)
	ListGalleryEvents(ctx context.Context, galleryID uint64, limit int) ([]models.AuditEvent, error)
	// PurgeOlderThan 删除超过保留天数的事件，配置了归档时先归档
	PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error)
	// WriteFailures 主存储写入失败的累计次数
	WriteFailures() uint64
}

type auditService struct {
	repo     repositories.AuditRepository
	sinks    []Sink
	archiver Archiver
	now      func() time.Time
	failures atomic.Uint64
}

var _ AuditService = (*auditService)(nil)

// Option 可选配置
type Option func(*auditService)

// WithSinks 追加镜像 sink
func WithSinks(sinks ...Sink) Option {
	return func(s *auditService) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithArchiver 清理前归档
func WithArchiver(a Archiver) Option {
	return func(s *auditService) { s.archiver = a }
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *auditService) { s.now = now }
}

func NewAuditService(repo repositories.AuditRepository, opts ...Option) AuditService {
	s := &auditService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *auditService) LogEvent(ctx context.Context, e Event) {
	if !e.Severity.Valid() {
		e.Severity = models.SeverityLow
	}
	event := &models.AuditEvent{
		EventType: e.Type,
		Severity:  e.Severity,
		ActorIP:   utils.NormalizeIP(e.IP),
		UserAgent: utils.TruncateUserAgent(e.UserAgent),
		GalleryID: e.GalleryID,
		Details:   e.Details,
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.failures.Add(1)
		metrics.ObserveAuditFailure("database")
		logger.Error("LogEvent: 审计事件写入失败",
			zap.String("eventType", string(e.Type)),
			zap.String("severity", string(e.Severity)),
			zap.String("ip", event.ActorIP),
			zap.Error(err))
	}

	if e.Severity == models.SeverityHigh || e.Severity == models.SeverityCritical {
		logger.Warn("安全事件",
			zap.String("eventType", string(e.Type)),
			zap.String("severity", string(e.Severity)),
			zap.String("ip", event.ActorIP),
			zap.Any("details", e.Details))
	}

	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := sink.Write(sinkCtx, event); err != nil {
			metrics.ObserveAuditFailure(sink.Name())
			logger.Warn("LogEvent: 审计镜像写入失败", zap.String("sink", sink.Name()), zap.Error(err))
		}
		cancel()
	}
}

func (s *auditService) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	return s.repo.CountByIPSince(ctx, utils.NormalizeIP(ip), []models.EventType{models.EventFailedAuth}, since)
}

func (s *auditService) ListGalleryEvents(ctx context.Context, galleryID uint64, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.repo.ListByGallery(ctx, galleryID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计事件失败: %w", err)
	}
	return events, nil
}

func (s *auditService) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("保留天数必须大于 0: %d", retentionDays)
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	if s.archiver == nil {
		deleted, err := s.repo.DeleteBefore(ctx, cutoff, 0)
		if err != nil {
			return 0, fmt.Errorf("清理审计事件失败: %w", err)
		}
		return deleted, nil
	}

	var total int64
	var afterID uint64
	for {
		batch, err := s.repo.ListBefore(ctx, cutoff, afterID, purgeBatchSize)
		if err != nil {
			return total, fmt.Errorf("读取待归档事件失败: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		if err := s.archiver.Archive(ctx, batch); err != nil {
			return total, fmt.Errorf("归档审计事件失败: %w", err)
		}
		lastID := batch[len(batch)-1].ID
		deleted, err := s.repo.DeleteBefore(ctx, cutoff, lastID)
		if err != nil {
			return total, fmt.Errorf("清理审计事件失败: %w", err)
		}
		total += deleted
		afterID = lastID
		if len(batch) < purgeBatchSize {
			return total, nil
		}
	}
}

func (s *auditService) WriteFailures() uint64 {
	return s.failures.Load()
}
