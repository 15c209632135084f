package vectorstore

import (
	"context"
	"fmt"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgEmbedding chunk_embeddings 表的一行
type pgEmbedding struct {
	ChunkID    string          `gorm:"primaryKey;size:128"`
	FileID     uint            `gorm:"index;not null"`
	CategoryID uint            `gorm:"index;not null"`
	ChunkIndex int             `gorm:"not null"`
	PageNumber int             `gorm:"default:0"`
	Text       string          `gorm:"type:text"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
}

func (pgEmbedding) TableName() string {
	return "chunk_embeddings"
}

// pgHit 检索结果行
type pgHit struct {
	pgEmbedding
	Distance float64
}

// PGVectorStore 基于 PostgreSQL pgvector 扩展的向量索引
type PGVectorStore struct {
	db        *gorm.DB
	dimension int
}

// NewPGVectorStore 创建 pgvector 向量索引
func NewPGVectorStore(db *gorm.DB, dimension int) *PGVectorStore {
	return &PGVectorStore{db: db, dimension: dimension}
}

// Migrate 启用扩展并建表
func (s *PGVectorStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
	chunk_id VARCHAR(128) PRIMARY KEY,
	file_id BIGINT NOT NULL,
	category_id BIGINT NOT NULL,
	chunk_index INTEGER NOT NULL,
	page_number INTEGER DEFAULT 0,
	text TEXT,
	embedding vector(%d)
)`, s.dimension)
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create chunk_embeddings: %w", err)
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_file_id ON chunk_embeddings (file_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_category_id ON chunk_embeddings (category_id)",
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Add 写入或覆盖向量
func (s *PGVectorStore) Add(ctx context.Context, entries []Entry) error {
	const op = "pgvector add"
	if len(entries) == 0 {
		return nil
	}

	rows := make([]pgEmbedding, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return types.Errorf(types.KindVectorStoreWrite, op,
				"vector dimension mismatch for %s: expected %d, got %d", e.ID, s.dimension, len(e.Vector))
		}
		rows = append(rows, pgEmbedding{
			ChunkID:    e.ID,
			FileID:     e.Metadata.FileID,
			CategoryID: e.Metadata.CategoryID,
			ChunkIndex: e.Metadata.ChunkIndex,
			PageNumber: e.Metadata.PageNumber,
			Text:       e.Text,
			Embedding:  pgvector.NewVector(e.Vector),
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chunk_id"}}, UpdateAll: true}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return types.E(types.KindVectorStoreWrite, op, err)
	}
	return nil
}

// Search 使用 <=> 余弦距离运算符检索
func (s *PGVectorStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	var rows []pgHit
	q := s.db.WithContext(ctx).Model(&pgEmbedding{}).
		Select("chunk_id, file_id, category_id, chunk_index, page_number, text, embedding <=> ? AS distance", pgvector.NewVector(vector))
	err := applyFilter(q, filter).
		Order("distance ASC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, types.E(types.KindVectorStoreRead, "pgvector search", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, r.pgEmbedding.hit(r.Distance))
	}
	return hits, nil
}

// DeleteByFilter 删除匹配行
func (s *PGVectorStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	const op = "pgvector delete"
	if filter.Empty() {
		return errEmptyDeleteFilter(op)
	}
	if err := applyFilter(s.db.WithContext(ctx), filter).Delete(&pgEmbedding{}).Error; err != nil {
		return types.E(types.KindVectorStoreRead, op, err)
	}
	return nil
}

// GetAllByFilter 按文件和分块顺序返回匹配行
func (s *PGVectorStore) GetAllByFilter(ctx context.Context, filter Filter, limit int) ([]Hit, error) {
	var rows []pgEmbedding
	q := applyFilter(s.db.WithContext(ctx).Model(&pgEmbedding{}).
		Select("chunk_id, file_id, category_id, chunk_index, page_number, text"), filter).
		Order("file_id ASC, chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.E(types.KindVectorStoreRead, "pgvector get all", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, r.hit(0))
	}
	return hits, nil
}

func (r pgEmbedding) hit(distance float64) Hit {
	return Hit{
		ID:   r.ChunkID,
		Text: r.Text,
		Metadata: types.ChunkMetadata{
			FileID:     r.FileID,
			CategoryID: r.CategoryID,
			ChunkIndex: r.ChunkIndex,
			PageNumber: r.PageNumber,
		},
		Distance: distance,
	}
}

func applyFilter(db *gorm.DB, filter Filter) *gorm.DB {
	if filter.CategoryID != nil {
		db = db.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.FileID != nil {
		db = db.Where("file_id = ?", *filter.FileID)
	}
	return db
}
