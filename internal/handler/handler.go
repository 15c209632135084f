package handler

import (
	"github.com/ashwinyue/docsearch/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Category *CategoryHandler
	File     *FileHandler
	Chunk    *ChunkHandler
	Search   *SearchHandler
	System   *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services, health HealthChecker) *Handlers {
	return &Handlers{
		Category: NewCategoryHandler(svc.Category),
		File:     NewFileHandler(svc.File),
		Chunk:    NewChunkHandler(svc.Chunk),
		Search:   NewSearchHandler(svc.Retrieval),
		System:   NewSystemHandler(svc.Config, health),
	}
}
