package handler

import (
	"strconv"

	filesvc "github.com/ashwinyue/docsearch/internal/service/file"
	"github.com/gin-gonic/gin"
)

// FileHandler 文件处理器
type FileHandler struct {
	fileSvc *filesvc.Service
}

// NewFileHandler 创建文件处理器
func NewFileHandler(fileSvc *filesvc.Service) *FileHandler {
	return &FileHandler{fileSvc: fileSvc}
}

// UploadFile 上传文件并提交后台处理
// POST /api/files/upload  multipart: file, category_id
func (h *FileHandler) UploadFile(c *gin.Context) {
	categoryID, err := strconv.ParseUint(c.PostForm("category_id"), 10, 64)
	if err != nil || categoryID == 0 {
		BadRequest(c, "category_id is required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required: "+err.Error())
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		Error(c, err)
		return
	}
	defer f.Close()

	resp, err := h.fileSvc.Upload(c.Request.Context(), &filesvc.UploadRequest{
		CategoryID:  uint(categoryID),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      f,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resp)
}

// GetTaskStatus 查询处理任务状态
// GET /api/files/status/:task_id
func (h *FileHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		BadRequest(c, "task_id is required")
		return
	}

	status, err := h.fileSvc.TaskStatus(c.Request.Context(), taskID)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, status)
}

// ListFiles 列出文件，可按分类过滤
// GET /api/files/list?category_id=
func (h *FileHandler) ListFiles(c *gin.Context) {
	var categoryID uint64
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "invalid category_id")
			return
		}
		categoryID = id
	}

	items, err := h.fileSvc.List(c.Request.Context(), uint(categoryID))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, items)
}

// GetFileStatus 获取文件处理状态
// GET /api/files/:id
func (h *FileHandler) GetFileStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	status, err := h.fileSvc.Status(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, status)
}

// DeleteFile 删除文件及其分块和向量
// DELETE /api/files/:id
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.fileSvc.Delete(c.Request.Context(), id); err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"message": "File deleted successfully"})
}
