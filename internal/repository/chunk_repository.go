package repository

import (
	"context"

	"github.com/ashwinyue/docsearch/internal/model"
	"gorm.io/gorm"
)

// ChunkRepository 分块仓库
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建分块仓库
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch 批量写入分块
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

// ListByFileID 获取文件的所有分块
func (r *ChunkRepository) ListByFileID(ctx context.Context, fileID uint) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// CountByFileID 统计文件的分块数
func (r *ChunkRepository) CountByFileID(ctx context.Context, fileID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("file_id = ?", fileID).Count(&n).Error
	return n, err
}

// DeleteByFileID 删除文件的所有分块
func (r *ChunkRepository) DeleteByFileID(ctx context.Context, fileID uint) error {
	return r.db.WithContext(ctx).Delete(&model.Chunk{}, "file_id = ?", fileID).Error
}
