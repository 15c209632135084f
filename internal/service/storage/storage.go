// Package storage 提供上传文件的物理存储，支持本地磁盘与 MinIO
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ashwinyue/docsearch/internal/config"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// Storage 文件存储接口
// key 为相对路径形式的对象名，如 3/<uuid>_report.pdf
type Storage interface {
	// Save 保存对象，相同 key 覆盖
	Save(ctx context.Context, req *SaveRequest) error
	// Open 打开对象内容，调用方负责关闭
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error
}

// SaveRequest 保存请求
type SaveRequest struct {
	Key         string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Type 存储类型
type Type string

const (
	TypeLocal Type = "local"
	TypeMinIO Type = "minio"
)

// New 根据配置创建存储
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch Type(cfg.Type) {
	case TypeLocal, "":
		return NewLocalStorage(cfg.Local.BasePath)
	case TypeMinIO:
		m := cfg.MinIO
		if m.Endpoint == "" || m.AccessKey == "" || m.SecretKey == "" || m.Bucket == "" {
			return nil, fmt.Errorf("missing required MinIO config")
		}
		return NewMinIOStorage(ctx, &MinIOConfig{
			Endpoint:   m.Endpoint,
			AccessKey:  m.AccessKey,
			SecretKey:  m.SecretKey,
			BucketName: m.Bucket,
			UseSSL:     m.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
