// Package table provides the small ordered-column tabular value that moves
// between the extraction stages. Upstream responses are arrays of flat or
// semi-nested JSON objects; rows are normalized to string cells so the
// output stage never sees raw JSON types.
package table

import (
	"sort"
	"strconv"
	"strings"
)

// Table holds rows keyed by column name. Columns preserves first-seen order
// across rows, with the columns a single row introduces registered sorted,
// so output files are stable across runs.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// New returns an empty table with the given columns.
func New(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// HasColumn reports whether the table declares the given column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds a row, registering any columns it introduces in sorted order.
func (t *Table) Append(row map[string]string) {
	var added []string
	for k := range row {
		if !t.HasColumn(k) {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	t.Columns = append(t.Columns, added...)
	t.Rows = append(t.Rows, row)
}

// EnsureColumns adds any missing columns, filling existing rows with "".
func (t *Table) EnsureColumns(names ...string) {
	for _, name := range names {
		if t.HasColumn(name) {
			continue
		}
		t.Columns = append(t.Columns, name)
		for _, row := range t.Rows {
			row[name] = ""
		}
	}
}

// Select returns a new table restricted to the given columns, in order.
// Missing cells come through as "".
func (t Table) Select(names ...string) Table {
	out := New(names...)
	for _, row := range t.Rows {
		picked := make(map[string]string, len(names))
		for _, name := range names {
			picked[name] = row[name]
		}
		out.Rows = append(out.Rows, picked)
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true.
func (t Table) Filter(keep func(row map[string]string) bool) Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// FromRecords builds a table from decoded JSON objects. Nested objects are
// flattened into dotted column names ("batch.lotNumber"); scalar values are
// rendered as strings, nulls as "".
func FromRecords(records []map[string]any) Table {
	var t Table
	for _, rec := range records {
		row := make(map[string]string, len(rec))
		flattenInto(row, "", rec)
		t.Append(row)
	}
	return t
}

func flattenInto(row map[string]string, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(row, key, nested)
			continue
		}
		row[key] = renderValue(v)
	}
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = renderValue(item)
		}
		return strings.Join(parts, ";")
	default:
		return ""
	}
}
