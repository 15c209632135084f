package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// parseSafely 调用解析器，第三方解析库在畸形输入上的 panic 转为错误
func parseSafely(ctx context.Context, p einoparser.Parser, r io.Reader) (docs []*schema.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			docs = nil
			err = fmt.Errorf("parser panic: %v", rec)
		}
	}()
	return p.Parse(ctx, r)
}

// pageParser 为分页解析结果标注 1 开始的页码
type pageParser struct {
	inner einoparser.Parser
}

func (p *pageParser) Parse(ctx context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	docs, err := p.inner.Parse(ctx, reader, opts...)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if d == nil {
			continue
		}
		// 各页可能共享同一个 ExtraMeta，按页复制后再写页码
		meta := make(map[string]any, len(d.MetaData)+1)
		for k, v := range d.MetaData {
			meta[k] = v
		}
		meta["page_number"] = i + 1
		d.MetaData = meta
	}
	return docs, nil
}

// textParser 纯文本解析器
type textParser struct{}

func (p *textParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	if text == "" {
		return []*schema.Document{}, nil
	}

	return []*schema.Document{
		{
			Content:  text,
			MetaData: make(map[string]any),
		},
	}, nil
}

// jsonParser 校验 JSON 并以两个空格缩进重新排版
type jsonParser struct{}

func (p *jsonParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	if !json.Valid(content) {
		return nil, errors.New("invalid json")
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, content, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to format json: %w", err)
	}

	return []*schema.Document{
		{Content: buf.String(), MetaData: make(map[string]any)},
	}, nil
}

// xmlParser 收集所有元素的字符数据，空白折叠为单个空格
type xmlParser struct{}

func (p *xmlParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	dec := xml.NewDecoder(reader)
	dec.Strict = true

	var parts []string
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
		case xml.CharData:
			if s := strings.Join(strings.Fields(string(t)), " "); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if !sawElement {
		return nil, errors.New("invalid xml: no root element")
	}

	return []*schema.Document{
		{Content: strings.Join(parts, " "), MetaData: make(map[string]any)},
	}, nil
}

// sqlParser 按语句切分 SQL 脚本，扫描失败时退回原文
type sqlParser struct{}

func (p *sqlParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	text := strings.ToValidUTF8(string(content), "�")

	stmts, err := pg_query.SplitWithScanner(text, true)
	if err != nil || len(stmts) == 0 {
		return []*schema.Document{
			{Content: text, MetaData: make(map[string]any)},
		}, nil
	}

	return []*schema.Document{
		{
			Content:  strings.Join(stmts, ";\n\n") + ";",
			MetaData: map[string]any{"statements": len(stmts)},
		},
	}, nil
}
