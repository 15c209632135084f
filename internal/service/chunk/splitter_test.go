package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func newTestSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(context.Background(), size, overlap, WhitespaceTokenizer{})
	if err != nil {
		t.Fatalf("NewSplitter() error: %v", err)
	}
	return s
}

// ========== NewSplitter 测试 ==========

func TestNewSplitter_InvalidParams(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative overlap", size: 10, overlap: -1},
		{name: "overlap equals size", size: 10, overlap: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSplitter(context.Background(), tt.size, tt.overlap, nil); err == nil {
				t.Error("NewSplitter() expected error")
			}
		})
	}
}

// ========== Split 测试 ==========

func TestSplit_EmptyInput(t *testing.T) {
	s := newTestSplitter(t, 10, 2)

	for _, in := range []string{"", "   ", "\n\n\t"} {
		chunks, err := s.Split(context.Background(), in, nil)
		if err != nil {
			t.Fatalf("Split(%q) error: %v", in, err)
		}
		if chunks != nil {
			t.Errorf("Split(%q) = %v, want nil", in, chunks)
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := newTestSplitter(t, 1000, 200)
	meta := map[string]any{"page_number": 3}

	chunks, err := s.Split(context.Background(), "Alpha.\n\nBeta.", meta)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Split() len = %d, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Index != 0 {
		t.Errorf("Index = %d, want 0", c.Index)
	}
	if !strings.Contains(c.Text, "Alpha.") || !strings.Contains(c.Text, "Beta.") {
		t.Errorf("Text = %q", c.Text)
	}
	if c.TokenCount != 2 {
		t.Errorf("TokenCount = %d, want 2", c.TokenCount)
	}
	if c.Metadata["page_number"] != 3 {
		t.Errorf("Metadata = %v, want page_number 3", c.Metadata)
	}

	// metadata 是副本
	c.Metadata["page_number"] = 99
	if meta["page_number"] != 3 {
		t.Error("Split() must copy metadata")
	}
}

func TestSplit_TokenBoundAndSequentialIndices(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 40; i++ {
		paragraphs = append(paragraphs, strings.Repeat("word ", 7)+"end.")
	}
	text := strings.Join(paragraphs, "\n\n")
	text += "\n\n" + strings.Repeat("unbroken ", 60)

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "small", size: 10, overlap: 2},
		{name: "medium", size: 25, overlap: 5},
		{name: "no overlap", size: 16, overlap: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSplitter(t, tt.size, tt.overlap)
			meta := map[string]any{"file_id": 1}

			chunks, err := s.Split(context.Background(), text, meta)
			if err != nil {
				t.Fatalf("Split() error: %v", err)
			}
			if len(chunks) < 2 {
				t.Fatalf("Split() len = %d, want several chunks", len(chunks))
			}
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d Index = %d", i, c.Index)
				}
				if c.TokenCount > tt.size {
					t.Errorf("chunk %d has %d tokens, limit %d", i, c.TokenCount, tt.size)
				}
				if strings.TrimSpace(c.Text) == "" {
					t.Errorf("chunk %d is blank", i)
				}
				if c.Metadata["file_id"] != 1 {
					t.Errorf("chunk %d metadata = %v", i, c.Metadata)
				}
			}
		})
	}
}

// sharedTokens 前一块末尾与后一块开头重合部分的 token 数
func sharedTokens(tok Tokenizer, prev, next string) int {
	n := len(next)
	if len(prev) < n {
		n = len(prev)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(prev, next[:k]) {
			return tok.Count(next[:k])
		}
	}
	return 0
}

func TestSplit_ConsecutiveChunksOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Sentence %d has a handful of plain words in it. ", i)
		if i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "small", size: 12, overlap: 3},
		{name: "medium", size: 40, overlap: 10},
		{name: "wide overlap", size: 30, overlap: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSplitter(t, tt.size, tt.overlap)
			chunks, err := s.Split(context.Background(), text, nil)
			if err != nil {
				t.Fatalf("Split() error: %v", err)
			}
			if len(chunks) < 3 {
				t.Fatalf("Split() len = %d, want several chunks", len(chunks))
			}
			for i := 1; i < len(chunks); i++ {
				if chunks[i].TokenCount > tt.size {
					t.Errorf("chunk %d has %d tokens, limit %d", i, chunks[i].TokenCount, tt.size)
				}
				got := sharedTokens(WhitespaceTokenizer{}, chunks[i-1].Text, chunks[i].Text)
				if got < tt.overlap {
					t.Errorf("chunks %d and %d share %d tokens, want >= %d\nprev: %q\nnext: %q",
						i-1, i, got, tt.overlap, chunks[i-1].Text, chunks[i].Text)
				}
			}
		})
	}
}

func TestSplit_UnbrokenRunMeasuredInTokens(t *testing.T) {
	text := strings.Repeat("x", 2000)

	t.Run("no overlap", func(t *testing.T) {
		s, err := NewSplitter(context.Background(), 100, 0, ApproxTokenizer{})
		if err != nil {
			t.Fatalf("NewSplitter() error: %v", err)
		}
		chunks, err := s.Split(context.Background(), text, nil)
		if err != nil {
			t.Fatalf("Split() error: %v", err)
		}
		if len(chunks) != 5 {
			t.Fatalf("Split() len = %d, want 5", len(chunks))
		}
		var joined strings.Builder
		for i, c := range chunks {
			if c.TokenCount != 100 {
				t.Errorf("chunk %d has %d tokens, want 100", i, c.TokenCount)
			}
			joined.WriteString(c.Text)
		}
		if joined.String() != text {
			t.Error("chunks without overlap should reassemble the input")
		}
	})

	t.Run("with overlap", func(t *testing.T) {
		s, err := NewSplitter(context.Background(), 100, 20, ApproxTokenizer{})
		if err != nil {
			t.Fatalf("NewSplitter() error: %v", err)
		}
		chunks, err := s.Split(context.Background(), text, nil)
		if err != nil {
			t.Fatalf("Split() error: %v", err)
		}
		if len(chunks) < 3 {
			t.Fatalf("Split() len = %d, want several chunks", len(chunks))
		}
		if chunks[0].TokenCount < 80 {
			t.Errorf("first chunk has %d tokens, want >= 80", chunks[0].TokenCount)
		}
		for i, c := range chunks {
			if c.TokenCount > 100 {
				t.Errorf("chunk %d has %d tokens, limit 100", i, c.TokenCount)
			}
			if i > 0 && i < len(chunks)-1 && c.TokenCount < 90 {
				t.Errorf("chunk %d has %d tokens, want close to 100", i, c.TokenCount)
			}
			if i > 0 {
				if got := sharedTokens(ApproxTokenizer{}, chunks[i-1].Text, c.Text); got < 20 {
					t.Errorf("chunks %d and %d share %d tokens, want >= 20", i-1, i, got)
				}
			}
		}
	})
}

func TestSplit_PreservesWhitespaceInsideChunks(t *testing.T) {
	// 制表符不是分隔符，超长文本按窗口切分时保留原文
	text := strings.Repeat("cell\tcell\tcell\t", 40)
	s := newTestSplitter(t, 20, 4)

	chunks, err := s.Split(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Split() len = %d, want several chunks", len(chunks))
	}
	for i, c := range chunks {
		if !strings.Contains(text, c.Text) {
			t.Errorf("chunk %d is not a substring of the input: %q", i, c.Text)
		}
		if c.TokenCount > 20 {
			t.Errorf("chunk %d has %d tokens, limit 20", i, c.TokenCount)
		}
	}
}

// ========== Tokenizer 测试 ==========

func TestApproxTokenizer_Count(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "", want: 0},
		{in: "abc", want: 1},
		{in: "abcd", want: 1},
		{in: "abcde", want: 2},
		{in: "你好世界", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := (ApproxTokenizer{}).Count(tt.in); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestWhitespaceTokenizer_Count(t *testing.T) {
	if got := (WhitespaceTokenizer{}).Count(" a  b\nc "); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}
