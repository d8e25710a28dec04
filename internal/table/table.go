// Package table provides the in-memory tabular values the KPI engine
// evaluates plans against. A Table is fully materialized: columns are
// ordered, cells are float64, string or nil, and all operations return
// new tables rather than mutating in place.
package table

import (
	"strconv"
	"strings"
)

// Table is an ordered set of named columns over a list of rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty table with the given column order.
func New(columns []string) *Table {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   idx,
	}
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has a column with that name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.rows) == 0
}

// AppendRow adds a row. Short rows are padded with nil; long rows are
// truncated to the column count.
func (t *Table) AppendRow(row []any) {
	r := make([]any, len(t.columns))
	copy(r, row)
	t.rows = append(t.rows, r)
}

// Cell returns the value at (row, column name), or nil if the column is
// absent.
func (t *Table) Cell(row int, column string) any {
	i, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.rows[row][i]
}

// Column returns all values of a column and whether the column exists.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, true
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := New(t.columns)
	for r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, t.rows[r])
		}
	}
	return out
}

// SortBy returns a new table with rows reordered by the given less
// function over row indices. The sort is stable.
func (t *Table) SortBy(less func(i, j int) bool) *Table {
	order := make([]int, len(t.rows))
	for i := range order {
		order[i] = i
	}
	// Insertion sort keeps this stable without pulling in sort.SliceStable
	// closures over swapped state.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && less(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	out := New(t.columns)
	for _, r := range order {
		out.rows = append(out.rows, t.rows[r])
	}
	return out
}

// Group is one partition of a table: the grouping key values (in group
// column order) and the sub-table of its rows.
type Group struct {
	Key   []any
	Table *Table
}

// Partition splits the table by the given columns, in first-appearance
// order. Columns not present in the table must be filtered out by the
// caller beforehand.
func (t *Table) Partition(columns []string) []Group {
	type bucket struct {
		key  []any
		rows [][]any
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for r := range t.rows {
		key := make([]any, len(columns))
		for i, c := range columns {
			key[i] = t.Cell(r, c)
		}
		mk := mapKey(key)
		b, ok := buckets[mk]
		if !ok {
			b = &bucket{key: key}
			buckets[mk] = b
			order = append(order, mk)
		}
		b.rows = append(b.rows, t.rows[r])
	}

	groups := make([]Group, 0, len(order))
	for _, mk := range order {
		b := buckets[mk]
		sub := New(t.columns)
		sub.rows = b.rows
		groups = append(groups, Group{Key: b.key, Table: sub})
	}
	return groups
}

// Concat merges tables top to bottom over the union of their columns, in
// first-appearance order. Cells for columns a source table lacks are nil.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	out := New(columns)
	for _, t := range tables {
		for r := range t.rows {
			row := make([]any, len(columns))
			for i, c := range columns {
				if t.HasColumn(c) {
					row[i] = t.Cell(r, c)
				}
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// KeyLabel renders a grouping key as a display string, joining multi-column
// keys with " / ".
func KeyLabel(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = CellString(v)
	}
	return strings.Join(parts, " / ")
}

// CellString renders a cell for display. Whole floats drop the decimal
// point so labels read "2024" rather than "2024.000000".
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func mapKey(key []any) string {
	var b strings.Builder
	for i, v := range key {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch v.(type) {
		case nil:
			b.WriteByte(0x00)
		default:
			b.WriteString(CellString(v))
		}
	}
	return b.String()
}
