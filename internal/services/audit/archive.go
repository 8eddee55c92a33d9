package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/storage"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// StorageArchiver 把过期审计事件压缩为 gzip NDJSON 写入对象存储
type StorageArchiver struct {
	storage storage.StorageService
	bucket  string
	now     func() time.Time
}

var _ Archiver = (*StorageArchiver)(nil)

// NewStorageArchiver 存储未配置或桶名为空时返回 nil，此时清理不做归档
func NewStorageArchiver(svc storage.StorageService, bucket string) Archiver {
	if svc == nil || bucket == "" {
		return nil
	}
	return &StorageArchiver{storage: svc, bucket: bucket, now: func() time.Time { return time.Now().UTC() }}
}

// objectName 归档对象路径: audit/2025/06/01/<uuid>.ndjson.gz
func (a *StorageArchiver) objectName() string {
	day := a.now().Format("2006/01/02")
	return path.Join("audit", day, uuid.NewString()+".ndjson.gz")
}

func (a *StorageArchiver) Archive(ctx context.Context, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	payload, err := encodeArchive(events)
	if err != nil {
		return err
	}

	objectName := a.objectName()
	res, err := a.storage.PutObject(ctx, a.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), "application/gzip")
	if err != nil {
		return fmt.Errorf("上传审计归档失败: %w", err)
	}
	logger.Info("Archive: 审计事件已归档",
		zap.String("bucket", res.Bucket),
		zap.String("object", objectName),
		zap.Int("events", len(events)),
		zap.Int64("size", res.Size))
	return nil
}

func encodeArchive(events []models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			zw.Close()
			return nil, fmt.Errorf("编码审计归档失败: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("压缩审计归档失败: %w", err)
	}
	return buf.Bytes(), nil
}
