package handler

import (
	chunksvc "github.com/ashwinyue/docsearch/internal/service/chunk"
	"github.com/gin-gonic/gin"
)

// ChunkHandler 分块处理器
type ChunkHandler struct {
	svc *chunksvc.Service
}

// NewChunkHandler 创建分块处理器
func NewChunkHandler(svc *chunksvc.Service) *ChunkHandler {
	return &ChunkHandler{svc: svc}
}

// ListFileChunks 获取文件的所有分块
// GET /api/files/:id/chunks
func (h *ChunkHandler) ListFileChunks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	chunks, err := h.svc.ListByFile(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"file_id": id,
		"chunks":  chunks,
		"total":   len(chunks),
	})
}
