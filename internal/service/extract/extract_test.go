package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/xuri/excelize/v2"
)

// fakeOCR 返回固定文本的 OCR
type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

func newTestExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func buildXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	f.SetCellValue("Sheet1", "A1", "name")
	f.SetCellValue("Sheet1", "B1", "amount")
	f.SetCellValue("Sheet1", "A2", "rent")
	f.SetCellValue("Sheet1", "B2", 1200)
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet() error: %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error: %v", err)
	}
	return buf.Bytes()
}

func buildPPTX(t *testing.T, slides ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, text := range slides {
		w, err := zw.Create(fmt.Sprintf("ppt/slides/slide%d.xml", i+1))
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		body := `<?xml version="1.0" encoding="UTF-8"?>` +
			`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
			`<p:cSld><p:spTree><p:sp><p:txBody>`
		for _, para := range strings.Split(text, "\n") {
			body += `<a:p><a:r><a:t>` + para + `</a:t></a:r></a:p>`
		}
		body += `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// buildPDF 生成每页一行文本的最小 PDF，xref 偏移按实际写入位置计算
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	fontRef := 3 + 2*len(pages)
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontRef, 4+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// buildDOCX 生成只含正文段落的最小 DOCX
func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	const ns = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	files := []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`},
		{"word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
			`</Relationships>`},
		{"word/styles.xml", `<?xml version="1.0" encoding="UTF-8"?><w:styles ` + ns + `></w:styles>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8"?><w:document ` + ns + `><w:body>` +
			body.String() + `</w:body></w:document>`},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// ========== FormatFromExt 测试 ==========

func TestFormatFromExt(t *testing.T) {
	tests := []struct {
		ext    string
		want   Format
		wantOK bool
	}{
		{ext: ".pdf", want: FormatPDF, wantOK: true},
		{ext: ".PDF", want: FormatPDF, wantOK: true},
		{ext: "docx", want: FormatWord, wantOK: true},
		{ext: ".xls", want: FormatSpreadsheet, wantOK: true},
		{ext: ".tiff", want: FormatImage, wantOK: true},
		{ext: ".exe", wantOK: false},
		{ext: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, ok := FormatFromExt(tt.ext)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FormatFromExt(%q) = %q,%v want %q,%v", tt.ext, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	if len(exts) != 17 {
		t.Errorf("SupportedExtensions() len = %d, want 17", len(exts))
	}
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatalf("SupportedExtensions() not sorted: %v", exts)
		}
	}
}

// ========== Extract 测试 ==========

func TestExtract_ValidSamples(t *testing.T) {
	e := newTestExtractor(t, WithOCR(&fakeOCR{text: "scanned invoice"}))

	tests := []struct {
		name      string
		ext       string
		data      []byte
		wantCount int
		contains  string
		check     func(t *testing.T, frags []Fragment)
	}{
		{
			name:      "text",
			ext:       ".txt",
			data:      []byte("Alpha.\n\nBeta."),
			wantCount: 1,
			contains:  "Beta.",
		},
		{
			name:      "json pretty printed",
			ext:       ".json",
			data:      []byte(`{"a":1,"b":[true]}`),
			wantCount: 1,
			contains:  "  \"a\": 1",
		},
		{
			name:      "xml character data",
			ext:       ".xml",
			data:      []byte("<root><item>first   one</item><item>second</item></root>"),
			wantCount: 1,
			contains:  "first one second",
		},
		{
			name:      "sql statements",
			ext:       ".sql",
			data:      []byte("SELECT 1; SELECT 2;"),
			wantCount: 1,
			contains:  "SELECT 2",
			check: func(t *testing.T, frags []Fragment) {
				if got := types.IntFromAny(frags[0].Metadata["statements"]); got != 2 {
					t.Errorf("statements = %d, want 2", got)
				}
			},
		},
		{
			name:      "pdf pages",
			ext:       ".pdf",
			data:      buildPDF(t, "First page text", "Second page text"),
			wantCount: 2,
			contains:  "First page text",
			check: func(t *testing.T, frags []Fragment) {
				if !strings.Contains(frags[1].Text, "Second page text") {
					t.Errorf("page 2 text = %q", frags[1].Text)
				}
				for i, f := range frags {
					if got := types.IntFromAny(f.Metadata["page_number"]); got != i+1 {
						t.Errorf("fragment %d page_number = %d, want %d", i, got, i+1)
					}
				}
			},
		},
		{
			name:      "docx paragraphs",
			ext:       ".docx",
			data:      buildDOCX(t, "The quarterly report covers revenue and churn.", "Renewals grew in every region."),
			wantCount: 1,
			contains:  "revenue and churn",
			check: func(t *testing.T, frags []Fragment) {
				if !strings.Contains(frags[0].Text, "Renewals grew in every region.") {
					t.Errorf("docx text = %q", frags[0].Text)
				}
			},
		},
		{
			name:      "spreadsheet skips empty sheet",
			ext:       ".xlsx",
			data:      buildXLSX(t),
			wantCount: 1,
			contains:  "rent | 1200",
			check: func(t *testing.T, frags []Fragment) {
				m := frags[0].Metadata
				if m["sheet_name"] != "Sheet1" {
					t.Errorf("sheet_name = %v, want Sheet1", m["sheet_name"])
				}
				if types.IntFromAny(m["page_number"]) != 1 || types.IntFromAny(m["columns"]) != 2 {
					t.Errorf("metadata = %v", m)
				}
			},
		},
		{
			name:      "slides",
			ext:       ".pptx",
			data:      buildPPTX(t, "Quarterly\nResults", "", "Roadmap"),
			wantCount: 2,
			contains:  "Quarterly\nResults",
			check: func(t *testing.T, frags []Fragment) {
				if got := types.IntFromAny(frags[1].Metadata["slide_number"]); got != 3 {
					t.Errorf("slide_number = %d, want 3", got)
				}
			},
		},
		{
			name:      "image via ocr",
			ext:       ".png",
			data:      []byte{0x89, 'P', 'N', 'G'},
			wantCount: 1,
			contains:  "scanned invoice",
		},
		{
			name:      "whitespace only",
			ext:       ".txt",
			data:      []byte("   \n\t "),
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags, err := e.Extract(context.Background(), bytes.NewReader(tt.data), tt.ext)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if len(frags) != tt.wantCount {
				t.Fatalf("Extract() len = %d, want %d", len(frags), tt.wantCount)
			}
			if tt.contains != "" && !strings.Contains(frags[0].Text, tt.contains) {
				t.Errorf("Extract() text = %q, want to contain %q", frags[0].Text, tt.contains)
			}
			for _, f := range frags {
				if strings.TrimSpace(f.Text) == "" {
					t.Error("Extract() returned blank fragment")
				}
			}
			if tt.check != nil {
				tt.check(t, frags)
			}
		})
	}
}

func TestExtract_CSV(t *testing.T) {
	e := newTestExtractor(t)

	data := "name,amount\nrent,1200\nfood,300\n"
	frags, err := e.Extract(context.Background(), strings.NewReader(data), ".csv")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("Extract() len = %d, want 1", len(frags))
	}
	if !strings.Contains(frags[0].Text, "name | amount") || !strings.Contains(frags[0].Text, "food | 300") {
		t.Errorf("Extract() text = %q", frags[0].Text)
	}
	if types.IntFromAny(frags[0].Metadata["rows"]) != 2 || types.IntFromAny(frags[0].Metadata["columns"]) != 2 {
		t.Errorf("metadata = %v", frags[0].Metadata)
	}
}

func TestExtract_CorruptInput(t *testing.T) {
	e := newTestExtractor(t)
	garbage := []byte("this is definitely not a binary document")

	tests := []struct {
		name string
		ext  string
		data []byte
	}{
		{name: "pdf", ext: ".pdf", data: garbage},
		{name: "docx", ext: ".docx", data: garbage},
		{name: "legacy doc", ext: ".doc", data: garbage},
		{name: "xlsx", ext: ".xlsx", data: garbage},
		{name: "pptx", ext: ".pptx", data: garbage},
		{name: "json", ext: ".json", data: []byte(`{"a":`)},
		{name: "xml", ext: ".xml", data: []byte("<root><open></root>")},
		{name: "image without ocr", ext: ".jpg", data: []byte{0xff, 0xd8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), bytes.NewReader(tt.data), tt.ext)
			if !errors.Is(err, types.ErrExtraction) {
				t.Errorf("Extract() error = %v, want ErrExtraction", err)
			}
		})
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(context.Background(), strings.NewReader("MZ"), ".exe")
	if !errors.Is(err, types.ErrUnsupportedFormat) {
		t.Errorf("Extract() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtract_OCRFailure(t *testing.T) {
	e := newTestExtractor(t, WithOCR(&fakeOCR{err: errors.New("quota exceeded")}))

	_, err := e.Extract(context.Background(), bytes.NewReader([]byte{1, 2, 3}), ".png")
	if !errors.Is(err, types.ErrExtraction) {
		t.Errorf("Extract() error = %v, want ErrExtraction", err)
	}
}
