package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/docsearch/internal/model"
	"gorm.io/gorm"
)

// FileRepository 文件仓库
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建文件仓库
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create 创建文件记录
func (r *FileRepository) Create(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetByID 根据ID获取文件
func (r *FileRepository) GetByID(ctx context.Context, id uint) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// List 列出文件，categoryID 为 0 时不过滤
func (r *FileRepository) List(ctx context.Context, categoryID uint) ([]*model.File, error) {
	var files []*model.File
	query := r.db.WithContext(ctx).Preload("Category").Order("id ASC")
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	err := query.Find(&files).Error
	return files, err
}

// UpdateTaskID 记录任务句柄
func (r *FileRepository) UpdateTaskID(ctx context.Context, id uint, taskID string) error {
	return r.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("task_id", taskID).Error
}

// Transition 条件更新状态，只有当前状态为 from 时才生效
// 返回是否有行被更新
func (r *FileRepository) Transition(ctx context.Context, id uint, from, to model.FileStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed 将非终态文件置为 failed 并记录错误
func (r *FileRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	return r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status IN ?", id, []model.FileStatus{model.FileStatusPending, model.FileStatusProcessing}).
		Updates(map[string]interface{}{
			"status":        model.FileStatusFailed,
			"error_message": message,
			"total_chunks":  0,
		}).Error
}

// MarkCompleted 将处理中的文件置为 completed
func (r *FileRepository) MarkCompleted(ctx context.Context, id uint, totalChunks int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ?", id, model.FileStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.FileStatusCompleted,
			"total_chunks":  totalChunks,
			"processed_at":  at,
			"error_message": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete 删除文件及其分块
func (r *FileRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Chunk{}, "file_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.File{}, "id = ?", id).Error
	})
}
