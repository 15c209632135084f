// Package ingest 实现文件入库流水线：提取、分块、向量化、写入索引，以及驱动它的任务队列与工作池
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ashwinyue/docsearch/internal/model"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/chunk"
	"github.com/ashwinyue/docsearch/internal/service/extract"
	"github.com/ashwinyue/docsearch/internal/service/storage"
	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultTimeLimit 单个文件处理的硬超时
const DefaultTimeLimit = time.Hour

// 结果状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// 失败时写入文件记录的消息
const (
	msgFileNotFound    = "File not found"
	msgNotPending      = "File is not pending"
	msgNoText          = "No text extracted from file"
	msgNoChunks        = "No chunks created"
	msgEmbeddingFailed = "Failed to generate embeddings"
	msgVectorStore     = "Failed to add to vector store"
)

// Extractor 文本提取
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, ext string) ([]extract.Fragment, error)
}

// Splitter 文本分块
type Splitter interface {
	Split(ctx context.Context, text string, metadata map[string]any) ([]chunk.Chunk, error)
}

// Embedder 批量向量化
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result 一次处理的结果，始终返回而不是抛出
type Result struct {
	Status      string     `json:"status"`
	FileID      uint       `json:"file_id"`
	TotalChunks int        `json:"total_chunks,omitempty"`
	Message     string     `json:"message,omitempty"`
	Kind        types.Kind `json:"kind,omitempty"`
}

// OK 是否处理成功
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Map 转换为任务结果
func (r Result) Map() map[string]any {
	m := map[string]any{
		"status":  r.Status,
		"file_id": r.FileID,
	}
	if r.OK() {
		m["total_chunks"] = r.TotalChunks
	} else {
		m["message"] = r.Message
	}
	return m
}

// Pipeline 入库流水线
type Pipeline struct {
	repo      *repository.Repositories
	storage   storage.Storage
	extractor Extractor
	splitter  Splitter
	embedder  Embedder
	store     vectorstore.Store
	timeLimit time.Duration
	logger    *logger.Logger
}

// PipelineConfig 流水线依赖
type PipelineConfig struct {
	Repo      *repository.Repositories
	Storage   storage.Storage
	Extractor Extractor
	Splitter  Splitter
	Embedder  Embedder
	Store     vectorstore.Store
	TimeLimit time.Duration
	Logger    *logger.Logger
}

// NewPipeline 创建流水线
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = DefaultTimeLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Pipeline{
		repo:      cfg.Repo,
		storage:   cfg.Storage,
		extractor: cfg.Extractor,
		splitter:  cfg.Splitter,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		timeLimit: cfg.TimeLimit,
		logger:    cfg.Logger,
	}
}

// stepError 流水线内部失败，message 写入文件记录
type stepError struct {
	message string
	kind    types.Kind
}

func (e *stepError) Error() string {
	return e.message
}

func fail(kind types.Kind, format string, args ...any) error {
	return &stepError{message: fmt.Sprintf(format, args...), kind: kind}
}

// Run 处理一个文件
// 文件状态 pending -> processing -> completed | failed，任何失败都只记录在文件上
func (p *Pipeline) Run(ctx context.Context, fileID uint) (result Result) {
	log := p.logger.With("file_id", fileID)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("ingestion panicked", "panic", r, "stack", string(debug.Stack()))
			msg := fmt.Sprintf("internal error: %v", r)
			p.markFailed(ctx, fileID, msg)
			result = Result{Status: StatusError, FileID: fileID, Message: msg, Kind: types.KindInternal}
		}
	}()

	file, err := p.repo.File.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Status: StatusError, FileID: fileID, Message: msgFileNotFound, Kind: types.KindInvalidRequest}
		}
		return Result{Status: StatusError, FileID: fileID, Message: err.Error(), Kind: types.KindInternal}
	}

	ok, err := p.repo.File.Transition(ctx, fileID, model.FileStatusPending, model.FileStatusProcessing)
	if err != nil {
		return Result{Status: StatusError, FileID: fileID, Message: err.Error(), Kind: types.KindInternal}
	}
	if !ok {
		log.Warn("skip file not in pending state", "status", file.Status)
		return Result{Status: StatusError, FileID: fileID, Message: msgNotPending, Kind: types.KindInvalidRequest}
	}

	log.Info("processing file", "filename", file.OriginalFilename, "type", file.FileType)

	runCtx, cancel := context.WithTimeout(ctx, p.timeLimit)
	defer cancel()

	total, err := p.process(runCtx, file)
	if err != nil {
		msg, kind := p.describe(runCtx, err)
		log.Warn("file processing failed", "kind", kind, "error", msg, "elapsed", time.Since(started))
		p.markFailed(ctx, fileID, msg)
		return Result{Status: StatusError, FileID: fileID, Message: msg, Kind: kind}
	}

	log.Info("file processed", "total_chunks", total, "elapsed", time.Since(started))
	return Result{Status: StatusSuccess, FileID: fileID, TotalChunks: total}
}

// describe 将错误转换为记录消息和类别，超时优先
func (p *Pipeline) describe(ctx context.Context, err error) (string, types.Kind) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("processing timed out after %s", p.timeLimit), types.KindTimeout
	}
	var se *stepError
	if errors.As(err, &se) {
		return se.message, se.kind
	}
	return err.Error(), types.KindOf(err)
}

// markFailed 终态写入不受处理超时影响
func (p *Pipeline) markFailed(ctx context.Context, fileID uint, msg string) {
	if err := p.repo.File.MarkFailed(context.WithoutCancel(ctx), fileID, msg); err != nil {
		p.logger.Error("failed to mark file failed", "file_id", fileID, "error", err)
	}
}

func (p *Pipeline) process(ctx context.Context, file *model.File) (int, error) {
	fragments, err := p.extract(ctx, file)
	if err != nil {
		return 0, err
	}
	if len(fragments) == 0 {
		return 0, fail(types.KindEmptyContent, msgNoText)
	}

	chunks, err := p.split(ctx, fragments)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fail(types.KindEmptyContent, msgNoChunks)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fail(types.KindEmbeddingService, "%s: %v", msgEmbeddingFailed, err)
	}

	rows, entries := buildRecords(file, chunks, vectors)
	if err := p.persist(ctx, file.ID, rows, entries); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (p *Pipeline) extract(ctx context.Context, file *model.File) ([]extract.Fragment, error) {
	ext := file.FileType
	if ext == "" {
		ext = filepath.Ext(file.OriginalFilename)
	}
	if _, ok := extract.FormatFromExt(ext); !ok {
		return nil, types.Errorf(types.KindUnsupportedFormat, "extract", "unsupported file type: %s", ext)
	}

	rc, err := p.storage.Open(ctx, file.FilePath)
	if err != nil {
		return nil, types.E(types.KindExtraction, "open", err)
	}
	defer rc.Close()

	return p.extractor.Extract(ctx, rc, ext)
}

// split 逐片段分块并拼接，Index 为拼接后的全局序号
func (p *Pipeline) split(ctx context.Context, fragments []extract.Fragment) ([]chunk.Chunk, error) {
	var all []chunk.Chunk
	for _, f := range fragments {
		cs, err := p.splitter.Split(ctx, f.Text, f.Metadata)
		if err != nil {
			return nil, types.E(types.KindInternal, "split", err)
		}
		all = append(all, cs...)
	}
	for i := range all {
		all[i].Index = i
	}
	return all, nil
}

// persist 在同一事务中写入分块行、完成状态和向量
// 向量写入放在最后，失败时事务回滚不留孤儿行
// 一旦调用过 Add，事务失败就按 file_id 清理向量，部分写入的批次也不会残留
func (p *Pipeline) persist(ctx context.Context, fileID uint, rows []*model.Chunk, entries []vectorstore.Entry) error {
	addAttempted := false
	err := p.repo.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Chunk.CreateBatch(ctx, rows); err != nil {
			return types.E(types.KindInternal, "save chunks", err)
		}
		ok, err := tx.File.MarkCompleted(ctx, fileID, len(rows), time.Now().UTC())
		if err != nil {
			return types.E(types.KindInternal, "mark completed", err)
		}
		if !ok {
			return types.Errorf(types.KindInternal, "mark completed", "file %d is no longer processing", fileID)
		}
		addAttempted = true
		if err := p.store.Add(ctx, entries); err != nil {
			p.logger.Error("vector store write failed", "file_id", fileID, "error", err)
			return fail(types.KindVectorStoreWrite, msgVectorStore)
		}
		return nil
	})
	if err != nil && addAttempted {
		if perr := p.store.DeleteByFilter(context.WithoutCancel(ctx), vectorstore.ByFile(fileID)); perr != nil {
			p.logger.Error("failed to purge vectors after failed persist", "file_id", fileID, "error", perr)
		}
	}
	return err
}

// buildRecords 生成分块行和向量条目，两者共享同一个 chunk_id
func buildRecords(file *model.File, chunks []chunk.Chunk, vectors [][]float32) ([]*model.Chunk, []vectorstore.Entry) {
	rows := make([]*model.Chunk, len(chunks))
	entries := make([]vectorstore.Entry, len(chunks))

	for i, c := range chunks {
		id := ChunkID(file.ID, c.Index)
		page := types.IntFromAny(c.Metadata["page_number"])

		row := &model.Chunk{
			FileID:     file.ID,
			ChunkID:    id,
			ChunkText:  c.Text,
			ChunkIndex: c.Index,
			TokenCount: c.TokenCount,
			Metadata:   c.Metadata,
		}
		if page > 0 {
			row.PageNumber = &page
		}
		rows[i] = row

		entries[i] = vectorstore.Entry{
			ID:     id,
			Text:   c.Text,
			Vector: vectors[i],
			Metadata: types.ChunkMetadata{
				FileID:     file.ID,
				CategoryID: file.CategoryID,
				ChunkIndex: c.Index,
				PageNumber: page,
			},
		}
	}
	return rows, entries
}

// ChunkID 生成分块标识 file_{fileID}_chunk_{ordinal}_{8 位随机十六进制}
func ChunkID(fileID uint, ordinal int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("file_%d_chunk_%d_%s", fileID, ordinal, suffix)
}
