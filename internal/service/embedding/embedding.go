// Package embedding 封装 eino Embedder，提供分批并发的向量化
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
)

// 默认参数
const (
	DefaultDimension   = 768
	DefaultBatchSize   = 10
	DefaultConcurrency = 4
)

// Config 向量化参数
type Config struct {
	Dimension   int
	BatchSize   int
	Concurrency int
}

// Service 向量化服务
type Service struct {
	embedder    embedding.Embedder
	dimension   int
	batchSize   int
	concurrency int
}

// NewService 创建向量化服务，embedder 为 nil 时所有调用返回 ErrEmbeddingService
func NewService(embedder embedding.Embedder, cfg Config) *Service {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Service{
		embedder:    embedder,
		dimension:   cfg.Dimension,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
}

// Dimension 向量维度
func (s *Service) Dimension() int {
	return s.dimension
}

// EmbedBatch 为每个文本生成一个向量，顺序与输入一致
// 任一批次失败或维度不符时整体失败，不返回部分结果
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embed batch"

	if s.embedder == nil {
		return nil, types.E(types.KindEmbeddingService, op, errors.New("embedder not configured"))
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			vectors, err := s.embedder.EmbedStrings(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vectors) != end-start {
				return fmt.Errorf("vector count mismatch: expected %d, got %d", end-start, len(vectors))
			}
			for i, v := range vectors {
				if len(v) != s.dimension {
					return fmt.Errorf("dimension mismatch at %d: expected %d, got %d", start+i, s.dimension, len(v))
				}
				out[start+i] = toFloat32(v)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, types.E(types.KindEmbeddingService, op, err)
	}
	return out, nil
}

// EmbedQuery 为单条查询生成向量
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
