package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesflow/mesflow/internal/table"
)

const pgInsertBatch = 200

// PostgresSink loads merged rows into a single table, deduplicated by a
// content hash so reruns over the same lots insert nothing twice.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink connects to Postgres and ensures the target table exists.
func NewPostgresSink(ctx context.Context, dsn, tableName string) (*PostgresSink, error) {
	if tableName == "" {
		tableName = "lot_records"
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresSink{pool: pool, table: pgx.Identifier{tableName}.Sanitize()}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		row_hash TEXT PRIMARY KEY,
		master_template_name TEXT NOT NULL DEFAULT '',
		lot_number TEXT NOT NULL DEFAULT '',
		product_id TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL DEFAULT '',
		data_capture_time TEXT NOT NULL DEFAULT '',
		production_record_status TEXT NOT NULL DEFAULT '',
		structure_label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		input_data_value TEXT NOT NULL DEFAULT '',
		performed_by TEXT NOT NULL DEFAULT '',
		action_performed TEXT NOT NULL DEFAULT '',
		captured_data_type TEXT NOT NULL DEFAULT '',
		loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, lotNumber string, t table.Table) error {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pgColumn(c)
	}

	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (row_hash, %s) VALUES (%s) ON CONFLICT (row_hash) DO NOTHING`,
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	for i := 0; i < len(t.Rows); i += pgInsertBatch {
		j := min(i+pgInsertBatch, len(t.Rows))

		b := &pgx.Batch{}
		for _, row := range t.Rows[i:j] {
			args := make([]any, 0, len(cols)+1)
			args = append(args, rowHash(lotNumber, t.Columns, row))
			for _, c := range t.Columns {
				args = append(args, row[c])
			}
			b.Queue(query, args...)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < j-i; k++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("inserting rows for lot %s: %w", lotNumber, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing batch for lot %s: %w", lotNumber, err)
		}
	}
	return nil
}

// pgColumn maps an output column name ("Master Template Name") to its SQL
// column (master_template_name).
func pgColumn(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func rowHash(lotNumber string, columns []string, row map[string]string) string {
	h := sha256.New()
	h.Write([]byte(lotNumber))
	for _, c := range columns {
		h.Write([]byte{0x1f})
		h.Write([]byte(row[c]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
