package repository

import (
	"context"

	"github.com/ashwinyue/docsearch/internal/model"
	"gorm.io/gorm"
)

// CategoryRepository 分类数据访问
type CategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository 创建分类仓库
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create 创建分类
func (r *CategoryRepository) Create(ctx context.Context, c *model.Category) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID 获取分类
func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByName 按名称获取分类
func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// List 列出所有分类
func (r *CategoryRepository) List(ctx context.Context) ([]*model.Category, error) {
	var cs []*model.Category
	err := r.db.WithContext(ctx).Order("id ASC").Find(&cs).Error
	return cs, err
}

// CountFiles 统计分类下的文件数
func (r *CategoryRepository) CountFiles(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.File{}).Where("category_id = ?", id).Count(&n).Error
	return n, err
}

// CountFilesByCategory 一次性统计每个分类的文件数
func (r *CategoryRepository) CountFilesByCategory(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		Count      int64
	}
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Select("category_id, COUNT(*) AS count").
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.CategoryID] = row.Count
	}
	return counts, nil
}

// Delete 删除分类及其所有文件和分块
func (r *CategoryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fileIDs := tx.Model(&model.File{}).Select("id").Where("category_id = ?", id)
		if err := tx.Where("file_id IN (?)", fileIDs).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("category_id = ?", id).Delete(&model.File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Category{}, "id = ?", id).Error
	})
}
