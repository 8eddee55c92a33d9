package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/storage"
	"go.uber.org/zap"
)

// InitStorage 初始化对象存储并确保媒体桶和审计归档桶存在
// 未配置 storage.type 时返回 nil, nil，媒体接口和审计归档随之关闭
func InitStorage(cfg *config.Config) (storage.StorageService, error) {
	if cfg.Storage.Type == "" {
		logger.Info("未配置对象存储，跳过初始化")
		return nil, nil
	}
	svc, err := storage.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buckets := []string{svc.DefaultBucket()}
	if cfg.Audit.ArchiveBucket != "" && cfg.Audit.ArchiveBucket != svc.DefaultBucket() {
		buckets = append(buckets, cfg.Audit.ArchiveBucket)
	}
	for _, bucket := range buckets {
		if err := ensureBucket(ctx, svc, bucket); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func ensureBucket(ctx context.Context, svc storage.StorageService, bucket string) error {
	exists, err := svc.IsBucketExist(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶存在性失败: %w", err)
	}
	if exists {
		logger.Info("存储桶已存在", zap.String("bucketName", bucket))
		return nil
	}
	logger.Info("存储桶不存在，尝试创建...", zap.String("bucketName", bucket))
	if err := svc.MakeBucket(ctx, bucket); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	return nil
}
