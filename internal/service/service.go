package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashwinyue/docsearch/internal/config"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/repository"
	"github.com/ashwinyue/docsearch/internal/service/answer"
	"github.com/ashwinyue/docsearch/internal/service/callback"
	"github.com/ashwinyue/docsearch/internal/service/category"
	"github.com/ashwinyue/docsearch/internal/service/chunk"
	"github.com/ashwinyue/docsearch/internal/service/embedding"
	"github.com/ashwinyue/docsearch/internal/service/file"
	"github.com/ashwinyue/docsearch/internal/service/ingest"
	"github.com/ashwinyue/docsearch/internal/service/retrieval"
	"github.com/ashwinyue/docsearch/internal/service/storage"
	"github.com/ashwinyue/docsearch/internal/service/task"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	// 业务服务
	Category  *category.Service
	File      *file.Service
	Chunk     *chunk.Service
	Retrieval *retrieval.Engine

	// 入库
	Pipeline *ingest.Pipeline
	Workers  *ingest.WorkerPool
	Queue    ingest.Queue
	Tasks    task.Store

	// 基础组件
	Config      *config.Config
	Storage     storage.Storage
	VectorStore vectorstore.Store
	Embedding   *embedding.Service

	closers []func() error
}

// NewServices 创建所有服务
// 聊天模型或向量化模型缺失时只记录警告，相应请求在调用时失败
func NewServices(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Services, error) {
	s := &Services{Config: cfg}

	callback.SetupGlobalCallbacks(log, cfg.App.Debug)

	repo := repository.NewRepositories(db)

	st, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	s.Storage = st

	store, err := newVectorStore(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	s.VectorStore = store

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		log.Warn("embedder not available", "provider", cfg.AI.Embedding.Provider, "error", err)
		embedder = nil
	}
	s.Embedding = embedding.NewService(embedder, embedding.Config{
		Dimension:   cfg.Vector.Dimension,
		BatchSize:   cfg.AI.Embedding.BatchSize,
		Concurrency: cfg.AI.Embedding.Concurrency,
	})

	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		log.Warn("chat model not available", "provider", cfg.AI.Provider, "error", err)
		chatModel = nil
	}
	synthesizer := answer.NewLLMSynthesizer(chatModel, answer.DefaultConfig())

	extractor, ocr, err := newExtractor(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	if ocr != nil {
		s.closers = append(s.closers, ocr.Close)
	}

	splitter, err := newSplitter(ctx, cfg, log)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Worker.Queue == "redis" {
		redisClient, err = newRedisClient(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, redisClient.Close)
	}
	s.Queue, s.Tasks = newDispatch(cfg, redisClient)
	if mq, ok := s.Queue.(*ingest.MemoryQueue); ok {
		s.closers = append(s.closers, func() error {
			mq.Close()
			return nil
		})
	}

	s.Pipeline = ingest.NewPipeline(ingest.PipelineConfig{
		Repo:      repo,
		Storage:   st,
		Extractor: extractor,
		Splitter:  splitter,
		Embedder:  s.Embedding,
		Store:     store,
		TimeLimit: cfg.Worker.TimeLimit(),
		Logger:    log.With("component", "ingest"),
	})
	if cfg.Worker.Enabled {
		s.Workers = ingest.NewWorkerPool(s.Queue, s.Pipeline, s.Tasks, cfg.Worker.Concurrency, log.With("component", "worker"))
	}

	s.Category = category.NewService(repo, store, st, log.With("component", "category"))
	s.File = file.NewService(repo, st, store, s.Queue, s.Tasks, file.Config{
		MaxFileSize: cfg.Upload.MaxFileSize(),
	}, log.With("component", "file"))
	s.Chunk = chunk.NewService(repo)
	s.Retrieval = retrieval.NewEngine(repo, s.Embedding, store, synthesizer, log.With("component", "retrieval"))

	log.Info("services initialized",
		"vector_backend", cfg.Vector.Backend,
		"storage", cfg.Storage.Type,
		"queue", cfg.Worker.Queue,
		"workers", cfg.Worker.Enabled)
	return s, nil
}

// Close 释放外部连接，先停止工作池
func (s *Services) Close() error {
	if s.Workers != nil {
		s.Workers.Stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
