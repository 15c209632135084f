package chunk

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer 计算文本的 token 数
type Tokenizer interface {
	Count(text string) int
}

// TiktokenTokenizer BPE 分词器
type TiktokenTokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer 创建 BPE 分词器，encoding 如 cl100k_base
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count 计算 token 数
func (t *TiktokenTokenizer) Count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// ApproxTokenizer 按每 4 个字符约 1 个 token 估算
type ApproxTokenizer struct{}

// Count 估算 token 数
func (ApproxTokenizer) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// WhitespaceTokenizer 以空白分隔的单词作为 token
type WhitespaceTokenizer struct{}

// Count 计算单词数
func (WhitespaceTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
