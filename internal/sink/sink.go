// Package sink is the output-stage boundary. The pipeline hands each merged
// per-lot table to a Sink; what the rows become after that (files, database
// rows) is not the extraction core's concern.
package sink

import (
	"context"

	"github.com/mesflow/mesflow/internal/table"
)

// Sink receives the merged table for one lot.
type Sink interface {
	Write(ctx context.Context, lotNumber string, t table.Table) error
}

// Multi fans a write out to every sink, stopping at the first error.
type Multi []Sink

func (m Multi) Write(ctx context.Context, lotNumber string, t table.Table) error {
	for _, s := range m {
		if err := s.Write(ctx, lotNumber, t); err != nil {
			return err
		}
	}
	return nil
}
