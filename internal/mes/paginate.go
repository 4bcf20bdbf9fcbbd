package mes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mesflow/mesflow/internal/table"
)

const pageSize = 1000

// pageEnvelope covers both pagination shapes the MES API returns: a flat
// {content, last} page and the nested {pageResult: {content}, last} variant.
type pageEnvelope struct {
	Content    []map[string]any `json:"content"`
	PageResult struct {
		Content []map[string]any `json:"content"`
	} `json:"pageResult"`
	Last *bool `json:"last"`
}

// FetchAll walks every page of a paginated endpoint and returns the
// concatenated rows as one table. A failed page fails the whole fetch:
// partial results are never returned.
func (c *Client) FetchAll(ctx context.Context, path string, params url.Values) (table.Table, error) {
	var records []map[string]any

	for page := 0; ; page++ {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("currentPage", strconv.Itoa(page))
		q.Set("itemsPerPage", strconv.Itoa(pageSize))

		body, err := c.Get(ctx, path, q)
		if err != nil {
			return table.Table{}, err
		}

		var env pageEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return table.Table{}, fmt.Errorf("decoding page %d of %s: %w", page, path, err)
		}

		content := env.Content
		if content == nil {
			content = env.PageResult.Content
		}
		records = append(records, content...)

		// A missing "last" flag or an empty page both terminate the walk.
		if env.Last == nil || *env.Last || len(content) == 0 {
			break
		}
	}

	return table.FromRecords(records), nil
}
