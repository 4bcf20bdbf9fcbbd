package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesflow/mesflow/internal/table"
)

// CSVSink writes one CSV file per lot into a directory.
type CSVSink struct {
	dir string
}

// NewCSVSink creates a sink writing into dir, creating it if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) Write(ctx context.Context, lotNumber string, t table.Table) error {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(lotNumber) + ".csv"
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		f.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			cells[i] = row[col]
		}
		if err := w.Write(cells); err != nil {
			f.Close()
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}
