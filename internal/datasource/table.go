package datasource

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Row is one record of a dataset, keyed by column name.
type Row map[string]string

// Table is an immutable in-memory dataset. Rows keep their original file
// order; queries never mutate the table.
type Table struct {
	Name    string
	Columns []string
	rows    []Row
	numeric map[string]bool
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of all rows in original order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Constraint is one column condition in a query predicate.
type Constraint struct {
	Column string
	// Equals matches the cell text exactly when set.
	Equals string
	// Min/Max bound a numeric cell inclusively when set.
	Min *float64
	Max *float64
}

// Predicate is a conjunction of constraints: a row matches when every
// constraint holds.
type Predicate []Constraint

// Query returns rows matching every constraint, original order preserved.
// It is restartable: repeated calls with the same predicate return the same
// rows. Referencing an unknown column is an error rather than an empty
// result, so typos surface immediately.
func (t *Table) Query(pred Predicate) ([]Row, error) {
	colSet := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		colSet[c] = true
	}
	for _, c := range pred {
		if !colSet[c.Column] {
			return nil, fmt.Errorf("dataset %s has no column %q", t.Name, c.Column)
		}
	}

	var out []Row
	for _, row := range t.rows {
		if matches(row, pred) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matches(row Row, pred Predicate) bool {
	for _, c := range pred {
		cell := row[c.Column]
		if c.Equals != "" && cell != c.Equals {
			return false
		}
		if c.Min != nil || c.Max != nil {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return false
			}
			if c.Min != nil && v < *c.Min {
				return false
			}
			if c.Max != nil && v > *c.Max {
				return false
			}
		}
	}
	return true
}

// ColumnStats summarizes one numeric column.
type ColumnStats struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// Summary is a compact description of a dataset, handed to agents as data
// grounding.
type Summary struct {
	Name    string        `json:"name"`
	Rows    int           `json:"rows"`
	Columns []string      `json:"columns"`
	Numeric []ColumnStats `json:"numeric,omitempty"`
}

// SummaryStats computes row count, column list, and min/max/mean for each
// declared numeric column.
func (t *Table) SummaryStats() Summary {
	s := Summary{Name: t.Name, Rows: len(t.rows), Columns: t.Columns}
	for _, col := range t.Columns {
		if !t.numeric[col] {
			continue
		}
		stats := ColumnStats{Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		var n int
		for _, row := range t.rows {
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			v, _ := strconv.ParseFloat(cell, 64)
			stats.Min = math.Min(stats.Min, v)
			stats.Max = math.Max(stats.Max, v)
			sum += v
			n++
		}
		if n == 0 {
			continue
		}
		stats.Mean = sum / float64(n)
		s.Numeric = append(s.Numeric, stats)
	}
	return s
}

// loadTable reads and validates one CSV file. Any structural problem fails
// the load with ErrDataSourceCorrupt; numeric cells are checked here so a
// bad file can never be partially loaded.
func loadTable(name, path string, spec datasetSpec) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		// A dataset whose backing file vanished is as unusable as a
		// malformed one.
		return nil, corrupt(name, "open: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, corrupt(name, "csv parse: %v", err)
	}
	if len(records) == 0 {
		return nil, corrupt(name, "empty file")
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimSpace(strings.ToLower(col))
		if col == "" {
			return nil, corrupt(name, "empty column name at position %d", i)
		}
		if _, dup := colIdx[col]; dup {
			return nil, corrupt(name, "duplicate column %q", col)
		}
		colIdx[col] = i
		header[i] = col
	}

	for _, req := range spec.required {
		if _, ok := colIdx[req]; !ok {
			return nil, corrupt(name, "missing required column %q", req)
		}
	}

	numeric := make(map[string]bool, len(spec.numeric))
	for _, col := range spec.numeric {
		numeric[col] = true
	}

	rows := make([]Row, 0, len(records)-1)
	for lineNo, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		for col := range numeric {
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				return nil, corrupt(name, "row %d: column %q is not numeric: %q", lineNo+2, col, cell)
			}
		}
		rows = append(rows, row)
	}

	return &Table{Name: name, Columns: header, rows: rows, numeric: numeric}, nil
}
