package vectorstore

import (
	"context"
	"fmt"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace 由 chunk id 派生 Qdrant point id 的命名空间
var pointNamespace = uuid.MustParse("6f1c1e8a-5b0c-4f5e-9d59-2f6a8f1e0c11")

// QdrantStore 基于 Qdrant 的向量索引，集合使用余弦距离
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore 创建 Qdrant 向量索引
func NewQdrantStore(client *qdrant.Client, collection string, dimension int) *QdrantStore {
	return &QdrantStore{client: client, collection: collection, dimension: dimension}
}

// EnsureCollection 集合不存在时创建
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range collections {
		if c == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// PointID chunk id 对应的 point id
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Add 写入点，payload 中保留原始 chunk id
func (s *QdrantStore) Add(ctx context.Context, entries []Entry) error {
	const op = "qdrant add"
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return types.Errorf(types.KindVectorStoreWrite, op,
				"vector dimension mismatch for %s: expected %d, got %d", e.ID, s.dimension, len(e.Vector))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":    e.ID,
				"text":        e.Text,
				"file_id":     int64(e.Metadata.FileID),
				"category_id": int64(e.Metadata.CategoryID),
				"chunk_index": int64(e.Metadata.ChunkIndex),
				"page_number": int64(e.Metadata.PageNumber),
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return types.E(types.KindVectorStoreWrite, op, err)
	}
	return nil
}

// Search 相似度检索，距离取 1-得分
func (s *QdrantStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	const op = "qdrant search"
	if topK <= 0 {
		return []Hit{}, nil
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, types.E(types.KindVectorStoreRead, op, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		distance := 1 - float64(p.Score)
		if distance < 0 {
			distance = 0
		}
		hit := payloadHit(p.Payload)
		hit.Distance = distance
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteByFilter 按过滤条件删除点
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	const op = "qdrant delete"
	if filter.Empty() {
		return errEmptyDeleteFilter(op)
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(qdrantFilter(filter)),
	})
	if err != nil {
		return types.E(types.KindVectorStoreRead, op, err)
	}
	return nil
}

// GetAllByFilter 通过 Scroll 取出匹配的点
func (s *QdrantStore) GetAllByFilter(ctx context.Context, filter Filter, limit int) ([]Hit, error) {
	const op = "qdrant get all"
	if limit <= 0 {
		limit = 10000
	}

	n := uint32(limit)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         qdrantFilter(filter),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, types.E(types.KindVectorStoreRead, op, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, payloadHit(p.Payload))
	}
	return hits, nil
}

// qdrantFilter 将 Filter 转为 must 条件，无条件时返回 nil
func qdrantFilter(filter Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if filter.CategoryID != nil {
		must = append(must, qdrant.NewMatchInt("category_id", int64(*filter.CategoryID)))
	}
	if filter.FileID != nil {
		must = append(must, qdrant.NewMatchInt("file_id", int64(*filter.FileID)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func payloadHit(payload map[string]*qdrant.Value) Hit {
	hit := Hit{}
	if v, ok := payload["chunk_id"]; ok {
		hit.ID = v.GetStringValue()
	}
	if v, ok := payload["text"]; ok {
		hit.Text = v.GetStringValue()
	}
	if v, ok := payload["file_id"]; ok {
		hit.Metadata.FileID = uint(v.GetIntegerValue())
	}
	if v, ok := payload["category_id"]; ok {
		hit.Metadata.CategoryID = uint(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_index"]; ok {
		hit.Metadata.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["page_number"]; ok {
		hit.Metadata.PageNumber = int(v.GetIntegerValue())
	}
	return hit
}
