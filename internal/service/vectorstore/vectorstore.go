// Package vectorstore 提供向量索引接口及其多种后端实现
package vectorstore

import (
	"context"
	"math"

	"github.com/ashwinyue/docsearch/internal/service/types"
)

// Store 向量索引
// 所有实现都可以被并发使用
type Store interface {
	// Add 写入或覆盖条目
	Add(ctx context.Context, entries []Entry) error
	// Search 返回按距离升序排列的至多 topK 个结果
	Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error)
	// DeleteByFilter 删除匹配的条目，重复调用无副作用
	DeleteByFilter(ctx context.Context, filter Filter) error
	// GetAllByFilter 不做相似度排序地取出至多 limit 个匹配条目
	GetAllByFilter(ctx context.Context, filter Filter, limit int) ([]Hit, error)
}

// Entry 待写入的条目
type Entry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata types.ChunkMetadata
}

// Hit 查询结果
// Distance 为余弦距离，取值 [0, 2]，越小越相似
type Hit struct {
	ID       string              `json:"id"`
	Text     string              `json:"text"`
	Metadata types.ChunkMetadata `json:"metadata"`
	Distance float64             `json:"distance"`
}

// Filter 元数据精确匹配条件，各字段之间为与关系
type Filter struct {
	CategoryID *uint
	FileID     *uint
}

// ByCategory 按分类过滤
func ByCategory(id uint) Filter {
	return Filter{CategoryID: &id}
}

// ByFile 按文件过滤
func ByFile(id uint) Filter {
	return Filter{FileID: &id}
}

// Empty 是否没有任何条件
func (f Filter) Empty() bool {
	return f.CategoryID == nil && f.FileID == nil
}

// Matches 判断元数据是否满足条件
func (f Filter) Matches(m types.ChunkMetadata) bool {
	if f.CategoryID != nil && m.CategoryID != *f.CategoryID {
		return false
	}
	if f.FileID != nil && m.FileID != *f.FileID {
		return false
	}
	return true
}

// Confidence 将余弦距离映射为 [0, 1] 的置信度，保留两位小数
// 这是启发式分数，不是概率
func Confidence(distance float64) float64 {
	c := 1 - distance/2
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return math.Round(c*100) / 100
}

func errEmptyDeleteFilter(op string) error {
	return types.Errorf(types.KindInvalidRequest, op, "refusing to delete with an empty filter")
}
