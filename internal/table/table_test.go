package table

import (
	"testing"
)

func TestFromRecords_NormalizesValues(t *testing.T) {
	got := FromRecords([]map[string]any{
		{
			"name":    "widget",
			"count":   float64(42),
			"ratio":   1.5,
			"current": true,
			"empty":   nil,
			"nested":  map[string]any{"inner": "v"},
		},
	})

	row := got.Rows[0]
	cases := map[string]string{
		"name":         "widget",
		"count":        "42",
		"ratio":        "1.5",
		"current":      "true",
		"empty":        "",
		"nested.inner": "v",
	}
	for col, want := range cases {
		if row[col] != want {
			t.Errorf("row[%q] = %q, want %q", col, row[col], want)
		}
	}
}

func TestAppend_ColumnOrderIsDeterministic(t *testing.T) {
	got := FromRecords([]map[string]any{
		{"zeta": "1", "alpha": "2", "mid": "3"},
		{"alpha": "4", "extra": "5"},
	})

	// Columns a row introduces come out sorted; later rows only append what
	// is genuinely new.
	want := []string{"alpha", "mid", "zeta", "extra"}
	if len(got.Columns) != len(want) {
		t.Fatalf("Columns = %v, want %v", got.Columns, want)
	}
	for i := range want {
		if got.Columns[i] != want[i] {
			t.Fatalf("Columns = %v, want %v", got.Columns, want)
		}
	}
}

func TestEnsureColumns_FillsExistingRows(t *testing.T) {
	tab := FromRecords([]map[string]any{{"a": "1"}})
	tab.EnsureColumns("a", "b")

	if !tab.HasColumn("b") {
		t.Fatal("column b not added")
	}
	if v, ok := tab.Rows[0]["b"]; !ok || v != "" {
		t.Errorf("row[b] = %q (present=%v), want empty string", v, ok)
	}
}

func TestSelect_PreservesOrderAndFillsMissing(t *testing.T) {
	tab := FromRecords([]map[string]any{{"x": "1", "y": "2"}})
	got := tab.Select("y", "missing")

	if len(got.Columns) != 2 || got.Columns[0] != "y" || got.Columns[1] != "missing" {
		t.Errorf("Columns = %v", got.Columns)
	}
	if got.Rows[0]["y"] != "2" || got.Rows[0]["missing"] != "" {
		t.Errorf("row = %v", got.Rows[0])
	}
}

func TestFilter(t *testing.T) {
	tab := FromRecords([]map[string]any{
		{"keep": "yes"},
		{"keep": "no"},
	})
	got := tab.Filter(func(row map[string]string) bool { return row["keep"] == "yes" })
	if got.Len() != 1 || got.Rows[0]["keep"] != "yes" {
		t.Errorf("filtered rows = %v", got.Rows)
	}
}
