// Package file 处理文件上传、状态查询与删除
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashwinyue/docsearch/internal/model"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/extract"
	"github.com/ashwinyue/docsearch/internal/service/ingest"
	"github.com/ashwinyue/docsearch/internal/service/storage"
	"github.com/ashwinyue/docsearch/internal/service/task"
	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxFileSize 默认单文件大小上限
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// UploadMessage 上传成功提示
const UploadMessage = "File uploaded successfully. Processing started."

var (
	ErrFileNotFound     = types.Errorf(types.KindNotFound, "", "file not found")
	ErrCategoryNotFound = types.Errorf(types.KindNotFound, "", "category not found")
)

// UploadRequest 上传请求
type UploadRequest struct {
	CategoryID  uint
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadResponse 上传响应
type UploadResponse struct {
	FileID   uint   `json:"file_id"`
	Filename string `json:"filename"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// StatusResponse 文件处理状态
type StatusResponse struct {
	FileID       uint       `json:"file_id"`
	Filename     string     `json:"filename"`
	Status       string     `json:"status"`
	TotalChunks  int        `json:"total_chunks"`
	ErrorMessage *string    `json:"error_message"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

// ListItem 文件列表项
type ListItem struct {
	ID               uint      `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	CategoryID       uint      `json:"category_id"`
	CategoryName     string    `json:"category_name"`
	Status           string    `json:"status"`
	TotalChunks      int       `json:"total_chunks"`
	CreatedAt        time.Time `json:"created_at"`
}

// Config 文件服务配置
type Config struct {
	MaxFileSize int64
}

// Service 文件服务
type Service struct {
	repo        *repository.Repositories
	storage     storage.Storage
	store       vectorstore.Store
	queue       ingest.Queue
	tasks       task.Store
	maxFileSize int64
	allowed     map[string]bool
	logger      *logger.Logger
}

// NewService 创建文件服务
func NewService(repo *repository.Repositories, st storage.Storage, store vectorstore.Store, queue ingest.Queue, tasks task.Store, cfg Config, log *logger.Logger) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	allowed := make(map[string]bool)
	for _, ext := range extract.SupportedExtensions() {
		allowed[ext] = true
	}
	return &Service{
		repo:        repo,
		storage:     st,
		store:       store,
		queue:       queue,
		tasks:       tasks,
		maxFileSize: cfg.MaxFileSize,
		allowed:     allowed,
		logger:      log,
	}
}

// Upload 校验并保存文件，创建 pending 记录和任务后入队
// 扩展名与大小校验在写入任何记录之前完成
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	const op = "upload"

	original := filepath.Base(strings.TrimSpace(req.Filename))
	if original == "" || original == "." || original == string(filepath.Separator) {
		return nil, types.Errorf(types.KindInvalidRequest, op, "filename is required")
	}
	ext := strings.ToLower(filepath.Ext(original))
	if !s.allowed[ext] {
		return nil, types.Errorf(types.KindInvalidRequest, op,
			"file type not allowed. Allowed types: %s", strings.Join(extract.SupportedExtensions(), ", "))
	}
	if req.Size > s.maxFileSize {
		return nil, types.Errorf(types.KindInvalidRequest, op,
			"file size exceeds maximum allowed size of %dMB", s.maxFileSize/(1024*1024))
	}

	if _, err := s.repo.Category.GetByID(ctx, req.CategoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	storedName := fmt.Sprintf("%s_%s", uuid.NewString(), original)
	key := fmt.Sprintf("%d/%s", req.CategoryID, storedName)
	if err := s.storage.Save(ctx, &storage.SaveRequest{
		Key:         key,
		ContentType: req.ContentType,
		Size:        req.Size,
		Reader:      req.Reader,
	}); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	f := &model.File{
		Filename:         storedName,
		OriginalFilename: original,
		FilePath:         key,
		FileType:         ext,
		FileSize:         req.Size,
		CategoryID:       req.CategoryID,
		Status:           model.FileStatusPending,
	}
	if err := s.repo.File.Create(ctx, f); err != nil {
		_ = s.storage.Delete(ctx, key)
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	taskID, err := s.tasks.Create(ctx)
	if err != nil {
		return nil, s.abandon(ctx, f.ID, fmt.Errorf("failed to create task: %w", err))
	}
	if err := s.repo.File.UpdateTaskID(ctx, f.ID, taskID); err != nil {
		return nil, s.abandon(ctx, f.ID, fmt.Errorf("failed to record task: %w", err))
	}
	if err := s.queue.Enqueue(ctx, ingest.Job{TaskID: taskID, FileID: f.ID}); err != nil {
		return nil, s.abandon(ctx, f.ID, fmt.Errorf("failed to enqueue file: %w", err))
	}

	s.logger.Info("file uploaded", "file_id", f.ID, "task_id", taskID, "filename", original, "size", req.Size)
	return &UploadResponse{
		FileID:   f.ID,
		Filename: original,
		TaskID:   taskID,
		Status:   string(model.FileStatusPending),
		Message:  UploadMessage,
	}, nil
}

// abandon 入队前失败时将文件置为 failed
func (s *Service) abandon(ctx context.Context, fileID uint, err error) error {
	if merr := s.repo.File.MarkFailed(context.WithoutCancel(ctx), fileID, err.Error()); merr != nil {
		s.logger.Error("failed to mark file failed", "file_id", fileID, "error", merr)
	}
	return err
}

// TaskStatus 查询任务状态
func (s *Service) TaskStatus(ctx context.Context, taskID string) (*task.Status, error) {
	return s.tasks.Get(ctx, taskID)
}

// Status 查询文件处理状态
func (s *Service) Status(ctx context.Context, id uint) (*StatusResponse, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{
		FileID:      f.ID,
		Filename:    f.OriginalFilename,
		Status:      string(f.Status),
		TotalChunks: f.TotalChunks,
		ProcessedAt: f.ProcessedAt,
	}
	if f.ErrorMessage != "" {
		msg := f.ErrorMessage
		resp.ErrorMessage = &msg
	}
	return resp, nil
}

// List 列出文件，categoryID 为 0 时返回全部
func (s *Service) List(ctx context.Context, categoryID uint) ([]*ListItem, error) {
	files, err := s.repo.File.List(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	items := make([]*ListItem, 0, len(files))
	for _, f := range files {
		item := &ListItem{
			ID:               f.ID,
			Filename:         f.Filename,
			OriginalFilename: f.OriginalFilename,
			FileType:         f.FileType,
			FileSize:         f.FileSize,
			CategoryID:       f.CategoryID,
			Status:           string(f.Status),
			TotalChunks:      f.TotalChunks,
			CreatedAt:        f.CreatedAt,
		}
		if f.Category != nil {
			item.CategoryName = f.Category.Name
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete 删除文件的向量、记录和存储对象
// 先清理向量，失败时保留记录以便重试
func (s *Service) Delete(ctx context.Context, id uint) error {
	f, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteByFilter(ctx, vectorstore.ByFile(id)); err != nil {
		return fmt.Errorf("failed to delete file vectors: %w", err)
	}
	if err := s.repo.File.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if err := s.storage.Delete(ctx, f.FilePath); err != nil {
		s.logger.Warn("failed to remove stored file", "file_id", id, "path", f.FilePath, "error", err)
	}

	s.logger.Info("file deleted", "file_id", id)
	return nil
}

func (s *Service) find(ctx context.Context, id uint) (*model.File, error) {
	f, err := s.repo.File.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return f, nil
}
