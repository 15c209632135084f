package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/xuri/excelize/v2"
)

// rowSeparator 表格单元格之间的分隔符
const rowSeparator = " | "

// spreadsheetParser 每个工作表生成一个片段
type spreadsheetParser struct{}

func (p *spreadsheetParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	docs := make([]*schema.Document, 0, len(sheets))
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		lines := make([]string, 0, len(rows))
		columns := 0
		for _, row := range rows {
			if len(row) > columns {
				columns = len(row)
			}
			line := strings.TrimSpace(strings.Join(row, rowSeparator))
			if strings.Trim(line, " |") == "" {
				continue
			}
			lines = append(lines, line)
		}

		docs = append(docs, &schema.Document{
			Content: strings.Join(lines, "\n"),
			MetaData: map[string]any{
				"sheet_name":  sheet,
				"page_number": i + 1,
				"rows":        len(rows),
				"columns":     columns,
			},
		})
	}
	return docs, nil
}

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// slidesParser 遍历 pptx 中的幻灯片，收集 a:t 文本
type slidesParser struct{}

func (p *slidesParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a pptx archive: %w", err)
	}

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{number: n, file: f})
	}
	if len(slides) == 0 {
		return nil, errors.New("no slides found in archive")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	docs := make([]*schema.Document, 0, len(slides))
	for _, s := range slides {
		text, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.number, err)
		}
		docs = append(docs, &schema.Document{
			Content: text,
			MetaData: map[string]any{
				"slide_number": s.number,
				"page_number":  s.number,
			},
		})
	}
	return docs, nil
}

// slideText 按段落收集幻灯片中的文本，段落之间换行
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}
	return strings.Join(paragraphs, "\n"), nil
}
