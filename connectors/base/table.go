// Package base holds types shared by the backend connectors.
package base

import (
	"fmt"
	"sort"
	"strings"
)

// Table is an ordered tabular result set returned by the structured and
// document backends.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// FromMaps builds a Table from unordered row maps. Column order is derived
// from the union of keys, sorted, with identifier and timestamp columns
// moved to the front for readability.
func FromMaps(rows []map[string]any) *Table {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	sort.SliceStable(columns, func(i, j int) bool {
		return columnRank(columns[i]) < columnRank(columns[j])
	})
	return &Table{Columns: columns, Rows: rows}
}

func columnRank(name string) int {
	switch name {
	case "timestamp":
		return 0
	case "machine_id":
		return 1
	default:
		return 2
	}
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// String renders the table as aligned plain text, one row per line. Used as
// the raw data block handed to the answer synthesizer.
func (t *Table) String() string {
	if t.Empty() {
		return "(no rows)"
	}

	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = len(col)
	}
	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cell := formatCell(row[col])
			cells[r][i] = cell
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], col)
	}
	b.WriteString("\n")
	for _, row := range cells {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Markdown renders the table as a GitHub-style markdown table.
func (t *Table) Markdown() string {
	if t.Empty() {
		return "(no rows)"
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = formatCell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%g", val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
