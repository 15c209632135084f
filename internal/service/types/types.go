// Package types 定义服务间共享的类型和错误
package types

import "fmt"

// ChunkMetadata 向量索引中每个分块携带的元数据
// 所有向量后端以相同的键存储
type ChunkMetadata struct {
	FileID     uint `json:"file_id"`
	CategoryID uint `json:"category_id"`
	ChunkIndex int  `json:"chunk_index"`
	PageNumber int  `json:"page_number"` // 未知时为 0
}

// ToMap 转换为向量后端使用的键值表
func (m ChunkMetadata) ToMap() map[string]any {
	return map[string]any{
		"file_id":     m.FileID,
		"category_id": m.CategoryID,
		"chunk_index": m.ChunkIndex,
		"page_number": m.PageNumber,
	}
}

// ChunkMetadataFromMap 从键值表还原元数据
// 兼容 JSON 解码后的 float64 以及各类整数
func ChunkMetadataFromMap(raw map[string]any) ChunkMetadata {
	return ChunkMetadata{
		FileID:     uint(toInt64(raw["file_id"])),
		CategoryID: uint(toInt64(raw["category_id"])),
		ChunkIndex: int(toInt64(raw["chunk_index"])),
		PageNumber: int(toInt64(raw["page_number"])),
	}
}

// IntFromAny 将元数据中的数值统一转换为 int
func IntFromAny(v any) int {
	return int(toInt64(v))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		var out int64
		if _, err := fmt.Sscanf(n, "%d", &out); err == nil {
			return out
		}
	}
	return 0
}
