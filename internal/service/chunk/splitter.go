// Package chunk 提供按 token 切分文本的分块器以及分块查询服务
package chunk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// 默认分块参数
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk 切分后的文本块
type Chunk struct {
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	TokenCount int            `json:"token_count"`
	Metadata   map[string]any `json:"metadata"`
}

// Splitter 递归分块器
// 依次尝试段落、换行、句号和空格作为分隔符，长度以 Tokenizer 计
// 没有分隔符可用的超长文本按 token 切窗口；每个块开头带上上一个块末尾 overlap 个 token
type Splitter struct {
	size      int
	overlap   int
	budget    int
	tokenizer Tokenizer
	inner     document.Transformer
}

// span 原文中的字节区间 [start, end)
type span struct {
	start, end int
}

// NewSplitter 创建分块器
func NewSplitter(ctx context.Context, size, overlap int, tokenizer Tokenizer) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if tokenizer == nil {
		tokenizer = ApproxTokenizer{}
	}

	// 候选块预留 overlap 的空间，重叠部分由 withOverlap 补上
	budget := size - overlap
	inner, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   budget,
		OverlapSize: 0,
		Separators:  []string{"\n\n", "\n", ". ", " "},
		LenFunc:     tokenizer.Count,
		KeepType:    recursive.KeepTypeEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}

	return &Splitter{size: size, overlap: overlap, budget: budget, tokenizer: tokenizer, inner: inner}, nil
}

// Split 切分文本，每个块复制一份 metadata
// 空白输入返回 nil
func (s *Splitter) Split(ctx context.Context, text string, metadata map[string]any) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	docs, err := s.inner.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, fmt.Errorf("splitter failed: %w", err)
	}

	spans, err := s.locate(text, docs)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}
	spans = s.withOverlap(text, spans)

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		meta := make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		p := strings.TrimSpace(text[sp.start:sp.end])
		chunks = append(chunks, Chunk{
			Index:      i,
			Text:       p,
			TokenCount: s.tokenizer.Count(p),
			Metadata:   meta,
		})
	}
	return chunks, nil
}

// locate 在原文中定位候选块，超出预算的候选块再按 token 切窗口
func (s *Splitter) locate(text string, docs []*schema.Document) ([]span, error) {
	var (
		out    []span
		cursor int
	)
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		i := strings.Index(text[cursor:], content)
		if i < 0 {
			return nil, fmt.Errorf("splitter output not found in source text after offset %d", cursor)
		}
		sp := span{start: cursor + i, end: cursor + i + len(content)}
		cursor = sp.end

		if s.tokenizer.Count(content) <= s.budget {
			out = append(out, sp)
			continue
		}
		out = append(out, s.windows(text, sp)...)
	}
	return out, nil
}

// windows 把超长区间切成连续窗口，每个窗口尽量填满预算，能在空白处断开时优先断在空白处
func (s *Splitter) windows(text string, sp span) []span {
	var out []span
	start := sp.start
	for start < sp.end {
		// 先倍增找到一个超出预算的上界，再在上界内二分
		limit := advance(text, start, sp.end, s.budget)
		for limit < sp.end && s.tokenizer.Count(text[start:limit]) <= s.budget {
			limit = advance(text, start, sp.end, 2*(limit-start))
		}
		bounds := append(runeStarts(text, start, limit)[1:], limit)
		n := sort.Search(len(bounds), func(i int) bool {
			return s.tokenizer.Count(text[start:bounds[i]]) > s.budget
		})
		end := bounds[0]
		if n > 0 {
			end = bounds[n-1]
		}

		if end < sp.end {
			if ws := strings.LastIndexFunc(text[start:end], unicode.IsSpace); ws > (end-start)/2 {
				end = start + ws
			}
		}
		trimmed := strings.TrimRightFunc(text[start:end], unicode.IsSpace)
		out = append(out, span{start: start, end: start + len(trimmed)})
		start = skipSpace(text, end, sp.end)
	}
	return out
}

// withOverlap 每个块向前延伸进上一个块，共享其末尾至少 overlap 个 token
// 上一个块整体被包含时直接并入当前块
func (s *Splitter) withOverlap(text string, spans []span) []span {
	if s.overlap == 0 {
		return spans
	}
	out := make([]span, 0, len(spans))
	out = append(out, spans[0])
	for _, cur := range spans[1:] {
		prev := out[len(out)-1]
		start := s.overlapStart(text, prev, cur)
		if start <= prev.start {
			out[len(out)-1] = span{start: prev.start, end: cur.end}
			continue
		}
		out = append(out, span{start: start, end: cur.end})
	}
	return out
}

// overlapStart 在上一个块内选取当前块的起点
// 优先从单词开头起，其次任意字符；整块仍不能超过 size
func (s *Splitter) overlapStart(text string, prev, cur span) int {
	fits := func(p int) bool {
		return s.tokenizer.Count(text[p:cur.end]) <= s.size
	}
	if p := s.suffixStart(text, prev, wordStarts(text, prev.start, prev.end)); fits(p) {
		return p
	}
	runes := runeStarts(text, prev.start, prev.end)
	if p := s.suffixStart(text, prev, runes); fits(p) {
		return p
	}
	// 重叠放不下时，在 size 内保留尽可能多的上文
	if i := sort.Search(len(runes), func(i int) bool { return fits(runes[i]) }); i < len(runes) {
		return runes[i]
	}
	return cur.start
}

// suffixStart 返回最靠后的起点 p，使 text[p:prev.end] 至少 overlap 个 token
// starts 升序且首元素为 prev.start，token 数随下标单调不增
func (s *Splitter) suffixStart(text string, prev span, starts []int) int {
	i := sort.Search(len(starts), func(i int) bool {
		return s.tokenizer.Count(text[starts[i]:prev.end]) < s.overlap
	})
	if i == 0 {
		return prev.start
	}
	return starts[i-1]
}

// advance 从 from 前进 n 字节并对齐到字符边界，不超过 to
func advance(text string, from, to, n int) int {
	if n < 1 {
		n = 1
	}
	i := from + n
	if i >= to {
		return to
	}
	for i < to && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

func skipSpace(text string, from, to int) int {
	for from < to {
		r, size := utf8.DecodeRuneInString(text[from:to])
		if !unicode.IsSpace(r) {
			break
		}
		from += size
	}
	return from
}

func runeStarts(text string, from, to int) []int {
	starts := make([]int, 0, to-from)
	for i := range text[from:to] {
		starts = append(starts, from+i)
	}
	return starts
}

func wordStarts(text string, from, to int) []int {
	var starts []int
	prevSpace := true
	for i, r := range text[from:to] {
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			starts = append(starts, from+i)
		}
		prevSpace = space
	}
	return starts
}
