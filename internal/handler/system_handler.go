package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ashwinyue/docsearch/internal/config"
	"github.com/ashwinyue/docsearch/internal/service/extract"
	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SystemHandler 系统处理器
type SystemHandler struct {
	cfg    *config.Config
	health HealthChecker
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(cfg *config.Config, health HealthChecker) *SystemHandler {
	return &SystemHandler{cfg: cfg, health: health}
}

// Health 健康检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetSystemInfo 获取系统信息
// GET /
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	Success(c, gin.H{
		"name":               h.cfg.App.Name,
		"version":            h.cfg.App.Version,
		"vector_backend":     h.cfg.Vector.Backend,
		"storage":            h.cfg.Storage.Type,
		"supported_formats":  extract.SupportedExtensions(),
		"max_file_size_mb":   h.cfg.Upload.MaxFileSizeMB,
		"embedding_provider": h.cfg.AI.Embedding.Provider,
	})
}
