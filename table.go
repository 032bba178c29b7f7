package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is an ordered, untyped tabular dataset: a header row plus data
// rows, all values kept as the raw strings the API returned. Row order
// is preserved through every operation.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table carries no data rows. A header-only
// response is empty: it is the loop's termination signal.
func (t *Table) Empty() bool {
	return t.NumRows() == 0
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ParseCSVTable reads a CSV body with a header row into a Table.
// A completely empty body yields an empty table rather than an error.
func ParseCSVTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv body: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	t := &Table{Columns: records[0]}
	if len(records) > 1 {
		t.Rows = records[1:]
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf(
				"parsing csv body: row %d has %d fields, expected %d",
				i+1, len(row), len(t.Columns),
			)
		}
	}
	return t, nil
}

// Concat merges pages into one table, preserving page order and
// within-page row order. Column layout is taken from the first page;
// later pages must match it.
func Concat(pages []*Table) (*Table, error) {
	combined := &Table{}
	for _, page := range pages {
		if page.Empty() {
			continue
		}
		if combined.Columns == nil {
			combined.Columns = page.Columns
		} else if !equalColumns(combined.Columns, page.Columns) {
			return nil, fmt.Errorf(
				"concatenating pages: column mismatch (%s vs %s)",
				strings.Join(combined.Columns, ","),
				strings.Join(page.Columns, ","),
			)
		}
		combined.Rows = append(combined.Rows, page.Rows...)
	}
	return combined, nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
