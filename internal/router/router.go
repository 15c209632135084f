package router

import (
	"github.com/ashwinyue/docsearch/internal/handler"
	"github.com/ashwinyue/docsearch/internal/middleware"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, log *logger.Logger, maxUploadBytes int64) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))

	// multipart 超出部分落盘
	if maxUploadBytes > 0 {
		r.MaxMultipartMemory = maxUploadBytes
	}

	// 健康检查
	r.GET("/health", h.System.Health)
	r.GET("/", h.System.GetSystemInfo)

	api := r.Group("/api")
	{
		// 分类
		categories := api.Group("/categories")
		{
			categories.POST("/create", h.Category.CreateCategory)
			categories.GET("/list", h.Category.ListCategories)
			categories.GET("/:id", h.Category.GetCategory)
			categories.DELETE("/:id", h.Category.DeleteCategory)
		}

		// 文件
		files := api.Group("/files")
		{
			files.POST("/upload", h.File.UploadFile)
			files.GET("/status/:task_id", h.File.GetTaskStatus)
			files.GET("/list", h.File.ListFiles)
			files.GET("/:id", h.File.GetFileStatus)
			files.GET("/:id/chunks", h.Chunk.ListFileChunks)
			files.DELETE("/:id", h.File.DeleteFile)
		}

		// 检索
		search := api.Group("/search")
		{
			search.POST("/query", h.Search.Query)
			search.POST("/summarize", h.Search.Summarize)
			search.POST("/qa", h.Search.QA)
			search.POST("/find-passages", h.Search.FindPassages)
		}
	}

	return r
}
