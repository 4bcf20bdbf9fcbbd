// Package extract pulls the per-record pieces out of the MES API: detail
// data captures, batch metadata (with primary/secondary fallback), and the
// unit/operation/phase structure listing.
package extract

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/mesflow/mesflow/internal/table"
)

// Fetcher is the slice of the API client the extractor needs.
type Fetcher interface {
	// Get performs one logical GET and returns the raw body.
	Get(ctx context.Context, path string, params url.Values) ([]byte, error)
	// FetchAll walks every page of a paginated endpoint.
	FetchAll(ctx context.Context, path string, params url.Values) (table.Table, error)
}

// Extractor fetches and normalizes the per-record source tables.
type Extractor struct {
	api    Fetcher
	logger *slog.Logger
}

// New creates an Extractor over the given API client.
func New(api Fetcher) *Extractor {
	return &Extractor{api: api, logger: slog.Default()}
}
