// Package retrieval 实现分类范围内的语义检索、问答、摘要与段落查找
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/answer"
	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"gorm.io/gorm"
)

// 空结果时的固定回答
const (
	NoResultsAnswer       = "No relevant documents found for your query."
	NoAnswerFound         = "I couldn't find relevant information to answer your question."
	NoDocumentsInCategory = "No documents found in this category."
)

// 参数默认值与取值范围
const (
	DefaultTopK        = 5
	MaxTopK            = 20
	DefaultPassageTopK = 10
	MaxPassageTopK     = 50
	DefaultMaxLength   = 500
	MinMaxLength       = 100
	MaxMaxLength       = 2000
	SummaryChunkLimit  = 50
)

var ErrCategoryNotFound = types.Errorf(types.KindNotFound, "", "category not found")

// Embedder 查询向量化
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// QueryRequest 语义检索请求
type QueryRequest struct {
	Query      string `json:"query" binding:"required"`
	CategoryID uint   `json:"category_id" binding:"required"`
	TopK       int    `json:"top_k"`
}

// QARequest 问答请求
type QARequest struct {
	Question   string `json:"question" binding:"required"`
	CategoryID uint   `json:"category_id" binding:"required"`
	TopK       int    `json:"top_k"`
}

// SummarizeRequest 摘要请求
type SummarizeRequest struct {
	CategoryID uint `json:"category_id" binding:"required"`
	MaxLength  int  `json:"max_length"`
}

// FindPassagesRequest 段落查找请求
type FindPassagesRequest struct {
	Query      string `json:"query" binding:"required"`
	CategoryID uint   `json:"category_id" binding:"required"`
	TopK       int    `json:"top_k"`
}

// Result 单条命中
type Result struct {
	ChunkID         string  `json:"chunk_id"`
	Text            string  `json:"text"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// QueryResponse 语义检索响应
type QueryResponse struct {
	Answer          string   `json:"answer"`
	ConfidenceScore float64  `json:"confidence_score"`
	Results         []Result `json:"results"`
}

// QAResponse 问答响应
type QAResponse struct {
	Answer          string   `json:"answer"`
	ConfidenceScore float64  `json:"confidence_score"`
	RelevantChunks  []Result `json:"relevant_chunks"`
}

// SummarizeResponse 摘要响应
type SummarizeResponse struct {
	Summary         string  `json:"summary"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// FindPassagesResponse 段落查找响应
type FindPassagesResponse struct {
	Passages   []Result `json:"passages"`
	TotalFound int      `json:"total_found"`
}

// Engine 检索引擎，只读，可并发使用
type Engine struct {
	repo        *repository.Repositories
	embedder    Embedder
	store       vectorstore.Store
	synthesizer answer.Synthesizer
	logger      *logger.Logger
}

// NewEngine 创建检索引擎
func NewEngine(repo *repository.Repositories, embedder Embedder, store vectorstore.Store, synthesizer answer.Synthesizer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		repo:        repo,
		embedder:    embedder,
		store:       store,
		synthesizer: synthesizer,
		logger:      log,
	}
}

// Query 检索并生成回答
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	topK, err := boundedInt("top_k", req.TopK, DefaultTopK, 1, MaxTopK)
	if err != nil {
		return nil, err
	}
	if err := requireText("query", req.Query); err != nil {
		return nil, err
	}

	hits, err := e.search(ctx, req.CategoryID, req.Query, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &QueryResponse{Answer: NoResultsAnswer, Results: []Result{}}, nil
	}

	text, confidence, err := e.synthesizer.GenerateAnswer(ctx, req.Query, hitTexts(hits))
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}

	return &QueryResponse{
		Answer:          text,
		ConfidenceScore: confidence,
		Results:         toResults(hits),
	}, nil
}

// QA 检索并回答具体问题
func (e *Engine) QA(ctx context.Context, req QARequest) (*QAResponse, error) {
	topK, err := boundedInt("top_k", req.TopK, DefaultTopK, 1, MaxTopK)
	if err != nil {
		return nil, err
	}
	if err := requireText("question", req.Question); err != nil {
		return nil, err
	}

	hits, err := e.search(ctx, req.CategoryID, req.Question, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &QAResponse{Answer: NoAnswerFound, RelevantChunks: []Result{}}, nil
	}

	text, confidence, err := e.synthesizer.AnswerQuestion(ctx, req.Question, hitTexts(hits))
	if err != nil {
		return nil, fmt.Errorf("q&a error: %w", err)
	}

	return &QAResponse{
		Answer:          text,
		ConfidenceScore: confidence,
		RelevantChunks:  toResults(hits),
	}, nil
}

// Summarize 对分类下至多 SummaryChunkLimit 个分块生成摘要
func (e *Engine) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	maxLength, err := boundedInt("max_length", req.MaxLength, DefaultMaxLength, MinMaxLength, MaxMaxLength)
	if err != nil {
		return nil, err
	}
	if err := e.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	hits, err := e.store.GetAllByFilter(ctx, vectorstore.ByCategory(req.CategoryID), SummaryChunkLimit)
	if err != nil {
		e.logger.Warn("failed to load category chunks", "category_id", req.CategoryID, "error", err)
		hits = nil
	}
	if len(hits) == 0 {
		return &SummarizeResponse{Summary: NoDocumentsInCategory}, nil
	}

	summary, confidence, err := e.synthesizer.Summarize(ctx, hitTexts(hits), maxLength)
	if err != nil {
		return nil, fmt.Errorf("summarization error: %w", err)
	}
	return &SummarizeResponse{Summary: summary, ConfidenceScore: confidence}, nil
}

// FindPassages 只检索，不调用模型
func (e *Engine) FindPassages(ctx context.Context, req FindPassagesRequest) (*FindPassagesResponse, error) {
	topK, err := boundedInt("top_k", req.TopK, DefaultPassageTopK, 1, MaxPassageTopK)
	if err != nil {
		return nil, err
	}
	if err := requireText("query", req.Query); err != nil {
		return nil, err
	}

	hits, err := e.search(ctx, req.CategoryID, req.Query, topK)
	if err != nil {
		return nil, err
	}

	passages := toResults(hits)
	return &FindPassagesResponse{Passages: passages, TotalFound: len(passages)}, nil
}

// search 校验分类、向量化查询并检索
// 向量化失败返回错误，检索失败记录日志后按无结果处理
func (e *Engine) search(ctx context.Context, categoryID uint, query string, topK int) ([]vectorstore.Hit, error) {
	if err := e.ensureCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.Search(ctx, vector, vectorstore.ByCategory(categoryID), topK)
	if err != nil {
		e.logger.Warn("vector search failed", "category_id", categoryID, "error", err)
		return nil, nil
	}
	return hits, nil
}

func (e *Engine) ensureCategory(ctx context.Context, id uint) error {
	if _, err := e.repo.Category.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	return nil
}

// boundedInt 零值取默认值，其余必须位于 [lo, hi]
func boundedInt(name string, v, def, lo, hi int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < lo || v > hi {
		return 0, types.Errorf(types.KindInvalidRequest, "validate", "%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func requireText(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return types.Errorf(types.KindInvalidRequest, "validate", "%s must not be empty", name)
	}
	return nil
}

func hitTexts(hits []vectorstore.Hit) []string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}

func toResults(hits []vectorstore.Hit) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ChunkID:         h.ID,
			Text:            h.Text,
			ConfidenceScore: vectorstore.Confidence(h.Distance),
		})
	}
	return results
}
