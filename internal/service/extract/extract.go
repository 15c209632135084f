// Package extract 将上传的文件转换为带位置元数据的文本片段
// 每种格式对应一个 eino parser.Parser，按扩展名查表选择
package extract

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
)

// Format 支持的文件格式
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatWord        Format = "word"
	FormatSpreadsheet Format = "spreadsheet"
	FormatDelimited   Format = "delimited"
	FormatSlides      Format = "slides"
	FormatText        Format = "text"
	FormatJSON        Format = "json"
	FormatXML         Format = "xml"
	FormatSQL         Format = "sql"
	FormatImage       Format = "image"
)

// 扩展名到格式的映射
var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".doc":  FormatWord,
	".docx": FormatWord,
	".xls":  FormatSpreadsheet,
	".xlsx": FormatSpreadsheet,
	".csv":  FormatDelimited,
	".ppt":  FormatSlides,
	".pptx": FormatSlides,
	".txt":  FormatText,
	".json": FormatJSON,
	".xml":  FormatXML,
	".sql":  FormatSQL,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
	".bmp":  FormatImage,
	".tiff": FormatImage,
}

// FormatFromExt 根据扩展名解析格式，大小写不敏感
func FormatFromExt(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, ok := extFormats[ext]
	return f, ok
}

// SupportedExtensions 返回允许上传的扩展名，已排序
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extFormats))
	for ext := range extFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Fragment 提取出的一段文本
type Fragment struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Extractor 文本提取器
type Extractor struct {
	parsers map[Format]einoparser.Parser
}

// Option 提取器选项
type Option func(*options)

type options struct {
	ocr OCR
}

// WithOCR 配置图片文字识别
func WithOCR(ocr OCR) Option {
	return func(o *options) {
		o.ocr = ocr
	}
}

// New 创建提取器
func New(ctx context.Context, opts ...Option) (*Extractor, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}

	docxParser, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  false,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create docx parser: %w", err)
	}

	return &Extractor{
		parsers: map[Format]einoparser.Parser{
			FormatPDF:         &pageParser{inner: pdfParser},
			FormatWord:        docxParser,
			FormatSpreadsheet: &spreadsheetParser{},
			FormatDelimited:   &csvParser{},
			FormatSlides:      &slidesParser{},
			FormatText:        &textParser{},
			FormatJSON:        &jsonParser{},
			FormatXML:         &xmlParser{},
			FormatSQL:         &sqlParser{},
			FormatImage:       &imageParser{ocr: o.ocr},
		},
	}, nil
}

// Extract 提取文本片段
// 未知格式返回 ErrUnsupportedFormat，解析失败返回 ErrExtraction，空白片段被丢弃
func (e *Extractor) Extract(ctx context.Context, r io.Reader, ext string) ([]Fragment, error) {
	const op = "extract"

	format, ok := FormatFromExt(ext)
	if !ok {
		return nil, types.Errorf(types.KindUnsupportedFormat, op, "unsupported file type: %s", ext)
	}
	p, ok := e.parsers[format]
	if !ok {
		return nil, types.Errorf(types.KindUnsupportedFormat, op, "no parser for format: %s", format)
	}

	docs, err := parseSafely(ctx, p, r)
	if err != nil {
		return nil, types.E(types.KindExtraction, op, fmt.Errorf("%s: %w", format, err))
	}

	fragments := make([]Fragment, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		meta := make(map[string]any, len(d.MetaData))
		for k, v := range d.MetaData {
			meta[k] = v
		}
		fragments = append(fragments, Fragment{Text: d.Content, Metadata: meta})
	}
	return fragments, nil
}
