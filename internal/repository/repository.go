package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB       *gorm.DB // 直接访问数据库
	Category *CategoryRepository
	File     *FileRepository
	Chunk    *ChunkRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		Category: NewCategoryRepository(db),
		File:     NewFileRepository(db),
		Chunk:    NewChunkRepository(db),
	}
}

// Transaction 在同一个事务中执行 fn，fn 收到绑定该事务的仓库集合
// fn 返回错误或 panic 时回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
