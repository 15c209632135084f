package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/docsearch/internal/config"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/service/chunk"
	"github.com/ashwinyue/docsearch/internal/service/extract"
	"github.com/ashwinyue/docsearch/internal/service/ingest"
	"github.com/ashwinyue/docsearch/internal/service/task"
	"github.com/ashwinyue/docsearch/internal/service/vectorstore"
	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiemb "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const dashscopeCompatibleURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// newChatModel 创建 ChatModel
func newChatModel(ctx context.Context, cfg *config.Config) (ecomodel.ChatModel, error) {
	aiCfg := cfg.AI

	var apiKey, baseURL, modelName string
	var timeout int

	switch strings.ToLower(aiCfg.Provider) {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
		timeout = aiCfg.OpenAI.Timeout
	case "alibaba", "qwen", "dashscope":
		apiKey = aiCfg.Alibaba.AccessKeySecret
		baseURL = dashscopeCompatibleURL
		modelName = aiCfg.Alibaba.Model
		timeout = aiCfg.Alibaba.Timeout
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
		timeout = aiCfg.DeepSeek.Timeout
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}

	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	chatCfg := &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	}
	if timeout > 0 {
		chatCfg.Timeout = time.Duration(timeout) * time.Second
	}
	return openai.NewChatModel(ctx, chatCfg)
}

// newEmbedder 创建 Embedder
func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	embCfg := cfg.AI.Embedding
	dimension := cfg.Vector.Dimension

	var timeout time.Duration
	if embCfg.Timeout > 0 {
		timeout = time.Duration(embCfg.Timeout) * time.Second
	}

	switch strings.ToLower(embCfg.Provider) {
	case "alibaba", "qwen", "dashscope", "":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: dashscope")
		}
		model := embCfg.Model
		if model == "" {
			model = "text-embedding-v3"
		}
		return dashscope.NewEmbedder(ctx, &dashscope.EmbeddingConfig{
			APIKey:     embCfg.APIKey,
			Model:      model,
			Timeout:    timeout,
			Dimensions: &dimension,
		})
	case "openai":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: openai")
		}
		return openaiemb.NewEmbedder(ctx, &openaiemb.EmbeddingConfig{
			APIKey:     embCfg.APIKey,
			BaseURL:    embCfg.BaseURL,
			Model:      embCfg.Model,
			Timeout:    timeout,
			Dimensions: &dimension,
		})
	case "ollama":
		baseURL := embCfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   embCfg.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
}

// newVectorStore 根据 vector.backend 创建向量索引并确保集合存在
func newVectorStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (vectorstore.Store, error) {
	vecCfg := cfg.Vector

	switch strings.ToLower(vecCfg.Backend) {
	case "memory", "":
		return vectorstore.NewMemoryStore(vecCfg.Dimension), nil
	case "elasticsearch", "es":
		esCfg := cfg.Elastic
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{esCfg.Host},
			Username:  esCfg.Username,
			Password:  esCfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create es client: %w", err)
		}
		index := esCfg.IndexPrefix + "_" + vecCfg.Collection
		store, err := vectorstore.NewElasticsearchStore(ctx, client, index, vecCfg.Dimension)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "qdrant":
		qCfg := cfg.Qdrant
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   qCfg.Host,
			Port:   qCfg.Port,
			APIKey: qCfg.APIKey,
			UseTLS: qCfg.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant client: %w", err)
		}
		store := vectorstore.NewQdrantStore(client, vecCfg.Collection, vecCfg.Dimension)
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "pgvector":
		if cfg.Database.Driver != "postgres" {
			return nil, fmt.Errorf("pgvector backend requires the postgres database driver")
		}
		store := vectorstore.NewPGVectorStore(db, vecCfg.Dimension)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", vecCfg.Backend)
	}
}

// newExtractor 创建文本提取器，启用 OCR 时附带 Vision 客户端
func newExtractor(ctx context.Context, cfg *config.Config, log *logger.Logger) (*extract.Extractor, *extract.VisionOCR, error) {
	var opts []extract.Option
	var ocr *extract.VisionOCR

	if cfg.OCR.Enabled {
		v, err := extract.NewVisionOCR(ctx, cfg.OCR.CredentialsFile)
		if err != nil {
			log.Warn("ocr disabled", "error", err)
		} else {
			ocr = v
			opts = append(opts, extract.WithOCR(v))
		}
	}

	ex, err := extract.New(ctx, opts...)
	if err != nil {
		if ocr != nil {
			_ = ocr.Close()
		}
		return nil, nil, err
	}
	return ex, ocr, nil
}

// newSplitter 创建分块器，BPE 编码不可用时退化为近似计数
func newSplitter(ctx context.Context, cfg *config.Config, log *logger.Logger) (*chunk.Splitter, error) {
	var tokenizer chunk.Tokenizer = chunk.ApproxTokenizer{}
	tk, err := chunk.NewTiktokenTokenizer(cfg.Chunking.Encoding)
	if err != nil {
		log.Warn("tiktoken unavailable, using approximate token count", "encoding", cfg.Chunking.Encoding, "error", err)
	} else {
		tokenizer = tk
	}
	return chunk.NewSplitter(ctx, cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, tokenizer)
}

// newRedisClient 创建 Redis 客户端并检查连通性
func newRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return client, nil
}

// newDispatch 创建任务队列和任务状态存储
func newDispatch(cfg *config.Config, client *redis.Client) (ingest.Queue, task.Store) {
	ttl := time.Duration(cfg.Worker.TaskTTL) * time.Second
	if client == nil {
		return ingest.NewMemoryQueue(1024), task.NewMemoryStore(ttl)
	}
	return ingest.NewRedisQueue(client, ""), task.NewRedisStore(client, ttl)
}
