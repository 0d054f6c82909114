package model

import (
	"fmt"
	"strings"
)

// Row is one data row; cells are addressed by column index. A cell holds a
// string, bool, float64 or nil.
type Row []any

// Snapshot is the full content of a table at one point in time.
type Snapshot struct {
	Header []string
	Rows   []Row
}

// Cell returns the value at col, or nil when the row is shorter than col.
func (r Row) Cell(col int) any {
	if col < 0 || col >= len(r) {
		return nil
	}
	return r[col]
}

// Text returns the cell at col as trimmed text. Empty cells yield "".
func (r Row) Text(col int) string {
	v := r.Cell(col)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Clone returns a copy of the row padded to width cells.
func (r Row) Clone(width int) Row {
	if width < len(r) {
		width = len(r)
	}
	out := make(Row, width)
	copy(out, r)
	return out
}

// SameCell reports raw equality of two cell values as they are printed, so
// 3 and 3.0 compare equal while "2024-01-02" and a time value never do.
func SameCell(a, b any) bool {
	if a == nil || b == nil {
		return IsEmpty(a) && IsEmpty(b)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// IsEmpty reports whether a cell holds no value.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// IsFalse reports whether a cell carries an explicit false.
func IsFalse(v any) bool {
	switch t := v.(type) {
	case bool:
		return !t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "false")
	default:
		return false
	}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Header: append([]string(nil), s.Header...), Rows: make([]Row, len(s.Rows))}
	for i, r := range s.Rows {
		out.Rows[i] = r.Clone(len(r))
	}
	return out
}
