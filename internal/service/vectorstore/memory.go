package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ashwinyue/docsearch/internal/service/types"
)

// MemoryStore 内存向量索引，暴力计算余弦距离
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

// NewMemoryStore 创建内存向量索引
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
}

// Add 写入条目，相同 ID 覆盖
func (s *MemoryStore) Add(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return types.Errorf(types.KindVectorStoreWrite, "memory add",
				"vector dimension mismatch for %s: expected %d, got %d", e.ID, s.dimension, len(e.Vector))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		v := make([]float32, len(e.Vector))
		copy(v, e.Vector)
		e.Vector = v
		s.entries[e.ID] = e
	}
	return nil
}

// Search 相似度检索
func (s *MemoryStore) Search(_ context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if len(vector) != s.dimension {
		return nil, types.Errorf(types.KindVectorStoreRead, "memory search",
			"query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	s.mu.RLock()
	hits := make([]Hit, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(e.Metadata) {
			continue
		}
		hits = append(hits, Hit{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Distance: cosineDistance(vector, e.Vector),
		})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteByFilter 删除匹配条目
func (s *MemoryStore) DeleteByFilter(_ context.Context, filter Filter) error {
	if filter.Empty() {
		return errEmptyDeleteFilter("memory delete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if filter.Matches(e.Metadata) {
			delete(s.entries, id)
		}
	}
	return nil
}

// GetAllByFilter 按文件和分块顺序返回匹配条目
func (s *MemoryStore) GetAllByFilter(_ context.Context, filter Filter, limit int) ([]Hit, error) {
	s.mu.RLock()
	hits := make([]Hit, 0)
	for _, e := range s.entries {
		if filter.Matches(e.Metadata) {
			hits = append(hits, Hit{ID: e.ID, Text: e.Text, Metadata: e.Metadata})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i].Metadata, hits[j].Metadata
		if a.FileID != b.FileID {
			return a.FileID < b.FileID
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len 当前条目数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) String() string {
	return fmt.Sprintf("memory(dim=%d)", s.dimension)
}

// cosineDistance 1 - cos(a, b)，零向量按正交处理
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		d = 0
	}
	if d > 2 {
		d = 2
	}
	return d
}
