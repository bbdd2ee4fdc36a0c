package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// RowScanner scans sql.Rows into column→value maps. SQL drivers hand textual
// columns back as []byte; the scanner converts those to strings based on the
// column's database type so values bind cleanly when written to a different
// engine. Binary columns (BLOB, BINARY, BYTEA) keep their byte slices.
type RowScanner struct {
	cols    []string
	keepRaw []bool
}

// NewRowScanner prepares a scanner for the result set's columns.
func NewRowScanner(rows *sql.Rows) (*RowScanner, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	keepRaw := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil && len(types) == len(cols) {
		for i, t := range types {
			keepRaw[i] = isBinaryType(t.DatabaseTypeName())
		}
	}

	return &RowScanner{cols: cols, keepRaw: keepRaw}, nil
}

// Columns returns the result set's column names in order.
func (s *RowScanner) Columns() []string { return s.cols }

// Scan reads the current row into a fresh column→value map.
func (s *RowScanner) Scan(rows *sql.Rows) (map[string]any, error) {
	values := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(map[string]any, len(s.cols))
	for i, col := range s.cols {
		v := values[i]
		if b, ok := v.([]byte); ok && !s.keepRaw[i] {
			v = string(b)
		}
		row[col] = v
	}
	return row, nil
}

func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") ||
		strings.Contains(t, "BINARY") ||
		t == "BYTEA"
}
