package chunk

import (
	"context"
	"errors"

	"github.com/ashwinyue/docsearch/internal/model"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/types"
	"gorm.io/gorm"
)

var ErrFileNotFound = types.Errorf(types.KindNotFound, "", "file not found")

// Service 分块查询服务
type Service struct {
	repo *repository.Repositories
}

// NewService 创建分块服务
func NewService(repo *repository.Repositories) *Service {
	return &Service{repo: repo}
}

// ListByFile 获取文件的所有分块，按 chunk_index 排序
func (s *Service) ListByFile(ctx context.Context, fileID uint) ([]*model.Chunk, error) {
	if _, err := s.repo.File.GetByID(ctx, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return s.repo.Chunk.ListByFileID(ctx, fileID)
}
