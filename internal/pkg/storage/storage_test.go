package storage

import (
	"testing"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorageService(t *testing.T) {
	cfg := config.Default()

	_, err := NewStorageService(cfg)
	assert.ErrorIs(t, err, ErrUnknownStorageType)

	cfg.Storage.Type = "minio"
	cfg.MinIO = config.MinIOConfig{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "galleries",
	}
	svc, err := NewStorageService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MinIOStorageService{}, svc)
	assert.Equal(t, "galleries", svc.DefaultBucket())

	cfg.Storage.Type = "aliyun_oss"
	cfg.AliyunOSS = config.AliyunOSSConfig{
		Endpoint:        "https://oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		BucketName:      "gallery-media",
	}
	svc, err = NewStorageService(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gallery-media", svc.DefaultBucket())
}
