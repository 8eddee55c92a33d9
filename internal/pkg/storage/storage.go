package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
)

// StorageService 对象存储操作接口
// 本服务只需要两类能力: 为已通过会话校验的访客签发媒体预签名地址，以及写入审计归档
type StorageService interface {
	// PutObject 上传对象，objectSize 未知时传 -1
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	// PreSignGetObjectURL 生成带有效期的下载地址
	PreSignGetObjectURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error)
	IsBucketExist(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string) error
	// DefaultBucket 配置中的媒体存储桶
	DefaultBucket() string
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

var ErrUnknownStorageType = errors.New("invalid storage type")

// NewStorageService 按配置选择存储实现
func NewStorageService(cfg *config.Config) (StorageService, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStorageService(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSStorageService(&cfg.AliyunOSS)
	default:
		return nil, ErrUnknownStorageType
	}
}
