package extract

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	_ "github.com/duckdb/duckdb-go/v2"
)

// csvParser 使用 DuckDB read_csv_auto 读取分隔文件，自动识别分隔符与表头
type csvParser struct{}

func (p *csvParser) Parse(ctx context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	tmp, err := os.CreateTemp("", "docsearch-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to buffer csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to buffer csv: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()

	path := strings.ReplaceAll(tmp.Name(), "'", "''")
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM read_csv_auto('%s', all_varchar = true)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	lines := []string{strings.Join(columns, rowSeparator)}
	count := 0
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = v.String
		}
		lines = append(lines, strings.Join(cells, rowSeparator))
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	return []*schema.Document{
		{
			Content: strings.Join(lines, "\n"),
			MetaData: map[string]any{
				"rows":    count,
				"columns": len(columns),
			},
		},
	}, nil
}
