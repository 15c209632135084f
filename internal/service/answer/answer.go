// Package answer 基于检索到的上下文调用大模型生成回答、问答与摘要
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"
)

// FallbackConfidence 模型输出无法解析为 JSON 时使用的置信度
const FallbackConfidence = 0.5

// ErrModelNotConfigured 未配置对话模型
var ErrModelNotConfigured = errors.New("chat model not configured")

// Synthesizer 答案合成器
// 返回的置信度已截断到 [0, 1] 并保留两位小数
type Synthesizer interface {
	GenerateAnswer(ctx context.Context, query string, chunks []string) (string, float64, error)
	AnswerQuestion(ctx context.Context, question string, chunks []string) (string, float64, error)
	Summarize(ctx context.Context, texts []string, maxLength int) (string, float64, error)
}

// Config 提示词配置
type Config struct {
	SystemPrompt   string
	AnswerPrompt   string // 参数: 上下文, 查询
	QuestionPrompt string // 参数: 上下文, 问题
	SummaryPrompt  string // 参数: 最大词数, 文档
}

// DefaultConfig 返回默认提示词
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt: `You are a precise assistant that answers strictly from the provided document excerpts.
Respond with a single JSON object and nothing else:
{"answer": "<your answer>", "confidence": <number between 0 and 1>}
The confidence reflects how well the excerpts support the answer.`,
		AnswerPrompt: `Document excerpts:
%s

Query: %s

Write a helpful answer to the query using only the excerpts above.`,
		QuestionPrompt: `Document excerpts:
%s

Question: %s

Answer the question directly. If the excerpts do not contain the answer, say so and use a low confidence.`,
		SummaryPrompt: `Summarize the following documents in at most %d words.
Cover the main topics and key facts.

Documents:
%s`,
	}
}

// LLMSynthesizer 使用 eino ChatModel 的答案合成器
type LLMSynthesizer struct {
	chatModel model.ChatModel
	config    *Config
}

// NewLLMSynthesizer 创建答案合成器
func NewLLMSynthesizer(chatModel model.ChatModel, cfg *Config) *LLMSynthesizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &LLMSynthesizer{
		chatModel: chatModel,
		config:    cfg,
	}
}

// GenerateAnswer 根据上下文回答查询
func (s *LLMSynthesizer) GenerateAnswer(ctx context.Context, query string, chunks []string) (string, float64, error) {
	prompt := fmt.Sprintf(s.config.AnswerPrompt, numberedContext(chunks), query)
	return s.generate(ctx, prompt)
}

// AnswerQuestion 根据上下文回答具体问题
func (s *LLMSynthesizer) AnswerQuestion(ctx context.Context, question string, chunks []string) (string, float64, error) {
	prompt := fmt.Sprintf(s.config.QuestionPrompt, numberedContext(chunks), question)
	return s.generate(ctx, prompt)
}

// Summarize 生成不超过 maxLength 个词的摘要
func (s *LLMSynthesizer) Summarize(ctx context.Context, texts []string, maxLength int) (string, float64, error) {
	prompt := fmt.Sprintf(s.config.SummaryPrompt, maxLength, numberedContext(texts))
	return s.generate(ctx, prompt)
}

func (s *LLMSynthesizer) generate(ctx context.Context, prompt string) (string, float64, error) {
	if s.chatModel == nil {
		return "", 0, ErrModelNotConfigured
	}

	messages := []*schema.Message{
		schema.SystemMessage(s.config.SystemPrompt),
		schema.UserMessage(prompt),
	}

	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate answer: %w", err)
	}
	if resp == nil {
		return "", 0, errors.New("failed to generate answer: empty response")
	}

	answer, confidence := ParseResponse(resp.Content)
	return answer, confidence, nil
}

// modelAnswer 模型约定的输出结构
type modelAnswer struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
}

// ParseResponse 解析模型输出
// 先去掉 markdown 代码块，再用 jsonrepair 修复常见格式问题
// 无法解析时原样返回文本，置信度为 FallbackConfidence
func ParseResponse(content string) (string, float64) {
	raw := strings.TrimSpace(content)
	s := stripCodeFence(raw)

	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	} else {
		return raw, FallbackConfidence
	}

	if !json.Valid([]byte(s)) {
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return raw, FallbackConfidence
		}
		s = repaired
	}

	var out modelAnswer
	if err := json.Unmarshal([]byte(s), &out); err != nil || strings.TrimSpace(out.Answer) == "" {
		return raw, FallbackConfidence
	}

	confidence := FallbackConfidence
	if out.Confidence != nil {
		confidence = *out.Confidence
	}
	return strings.TrimSpace(out.Answer), NormalizeConfidence(confidence)
}

// NormalizeConfidence 截断到 [0, 1] 并保留两位小数
func NormalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return math.Round(c*100) / 100
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func numberedContext(chunks []string) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, strings.TrimSpace(c))
	}
	return sb.String()
}
