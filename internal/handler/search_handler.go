package handler

import (
	"github.com/ashwinyue/docsearch/internal/service/retrieval"
	"github.com/gin-gonic/gin"
)

// SearchHandler 检索处理器
type SearchHandler struct {
	engine *retrieval.Engine
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(engine *retrieval.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Query 语义检索并生成回答
// POST /api/search/query
func (h *SearchHandler) Query(c *gin.Context) {
	var req retrieval.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.Query(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resp)
}

// QA 针对分类文档回答问题
// POST /api/search/qa
func (h *SearchHandler) QA(c *gin.Context) {
	var req retrieval.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.QA(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resp)
}

// Summarize 生成分类摘要
// POST /api/search/summarize
func (h *SearchHandler) Summarize(c *gin.Context) {
	var req retrieval.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.Summarize(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resp)
}

// FindPassages 查找相关段落，不生成回答
// POST /api/search/find-passages
func (h *SearchHandler) FindPassages(c *gin.Context) {
	var req retrieval.FindPassagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.FindPassages(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resp)
}
