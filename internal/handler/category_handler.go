package handler

import (
	"strconv"

	categorysvc "github.com/ashwinyue/docsearch/internal/service/category"
	"github.com/gin-gonic/gin"
)

// CategoryHandler 分类处理器
type CategoryHandler struct {
	svc *categorysvc.Service
}

// NewCategoryHandler 创建分类处理器
func NewCategoryHandler(svc *categorysvc.Service) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// CreateCategory 创建分类
// POST /api/categories/create
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req categorysvc.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	info, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, info)
}

// ListCategories 列出分类
// GET /api/categories/list
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, items)
}

// GetCategory 获取分类
// GET /api/categories/:id
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	info, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, info)
}

// DeleteCategory 删除分类及其文件、分块和向量
// DELETE /api/categories/:id
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"message": "Category deleted successfully"})
}

// parseID 解析路径中的正整数 ID，失败时写入 400
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
