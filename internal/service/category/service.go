// Package category 管理知识库分类
package category

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashwinyue/docsearch/internal/model"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/storage"
	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"gorm.io/gorm"
)

// MaxNameLength 分类名最大字符数
const MaxNameLength = 100

var (
	ErrCategoryNotFound = types.Errorf(types.KindNotFound, "", "category not found")
	ErrCategoryExists   = types.Errorf(types.KindInvalidRequest, "", "category with this name already exists")
)

// CreateRequest 创建分类请求
type CreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Info 分类信息，附带文件数
type Info struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	FileCount   int64     `json:"file_count"`
}

// Service 分类服务
type Service struct {
	repo    *repository.Repositories
	store   vectorstore.Store
	storage storage.Storage
	logger  *logger.Logger
}

// NewService 创建分类服务
func NewService(repo *repository.Repositories, store vectorstore.Store, st storage.Storage, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, store: store, storage: st, logger: log}
}

// Create 创建分类，名称唯一
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Info, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, types.Errorf(types.KindInvalidRequest, "create category", "name must be 1-%d characters", MaxNameLength)
	}

	if _, err := s.repo.Category.GetByName(ctx, name); err == nil {
		return nil, ErrCategoryExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := &model.Category{Name: name, Description: req.Description}
	if err := s.repo.Category.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return toInfo(c, 0), nil
}

// List 列出所有分类
func (s *Service) List(ctx context.Context) ([]*Info, error) {
	cs, err := s.repo.Category.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.Category.CountFilesByCategory(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(cs))
	for _, c := range cs {
		infos = append(infos, toInfo(c, counts[c.ID]))
	}
	return infos, nil
}

// Get 获取分类
func (s *Service) Get(ctx context.Context, id uint) (*Info, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Category.CountFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	return toInfo(c, n), nil
}

// Delete 删除分类及其下的所有文件、分块、向量和存储对象
// 先清理向量，失败时不删除任何记录，可以安全重试
func (s *Service) Delete(ctx context.Context, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	files, err := s.repo.File.List(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteByFilter(ctx, vectorstore.ByCategory(id)); err != nil {
		return fmt.Errorf("failed to delete category vectors: %w", err)
	}
	if err := s.repo.Category.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	for _, f := range files {
		if err := s.storage.Delete(ctx, f.FilePath); err != nil {
			s.logger.Warn("failed to remove stored file", "file_id", f.ID, "path", f.FilePath, "error", err)
		}
	}
	s.logger.Info("category deleted", "category_id", id, "files", len(files))
	return nil
}

func (s *Service) find(ctx context.Context, id uint) (*model.Category, error) {
	c, err := s.repo.Category.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return c, nil
}

func toInfo(c *model.Category, fileCount int64) *Info {
	return &Info{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		FileCount:   fileCount,
	}
}
