package model

import (
	"time"

	"gorm.io/datatypes"
)

// Chunk 可检索的文本分块，ChunkID 同时是向量索引中的主键
type Chunk struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	FileID     uint              `json:"file_id" gorm:"index;not null"`
	ChunkID    string            `json:"chunk_id" gorm:"size:128;uniqueIndex;not null"`
	ChunkText  string            `json:"chunk_text" gorm:"type:text;not null"`
	ChunkIndex int               `json:"chunk_index" gorm:"not null"`
	PageNumber *int              `json:"page_number"`
	TokenCount int               `json:"token_count" gorm:"default:0"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

func (Chunk) TableName() string {
	return "chunks"
}
