package store

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"sheetsync/internal/model"
)

// yamlSheet is the human-editable form of a snapshot: the header once, then
// one mapping per row keyed by header label.
type yamlSheet struct {
	Header []string         `yaml:"header"`
	Rows   []map[string]any `yaml:"rows"`
}

// EncodeYAML writes snap to w.
func EncodeYAML(w io.Writer, snap model.Snapshot) error {
	doc := yamlSheet{Header: snap.Header, Rows: make([]map[string]any, 0, len(snap.Rows))}
	for _, r := range snap.Rows {
		m := make(map[string]any, len(snap.Header))
		for i, h := range snap.Header {
			if v := r.Cell(i); v != nil {
				m[h] = v
			}
		}
		doc.Rows = append(doc.Rows, m)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads a snapshot written by EncodeYAML. Keys that are not in
// the header are rejected.
func DecodeYAML(r io.Reader) (model.Snapshot, error) {
	var doc yamlSheet
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode yaml: %w", err)
	}
	index := make(map[string]int, len(doc.Header))
	for i, h := range doc.Header {
		index[h] = i
	}
	snap := model.Snapshot{Header: doc.Header, Rows: make([]model.Row, 0, len(doc.Rows))}
	for n, m := range doc.Rows {
		row := make(model.Row, len(doc.Header))
		for k, v := range m {
			i, ok := index[k]
			if !ok {
				return model.Snapshot{}, fmt.Errorf("decode yaml: row %d: unknown column %q", n, k)
			}
			row[i] = normalizeYAML(v)
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}

// normalizeYAML maps yaml scalars onto the cell types used elsewhere.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case time.Time:
		// Unquoted timestamps come back as time values; keep the sheet's
		// text form so the wall-clock reading is unchanged.
		if _, offset := t.Zone(); offset == 0 {
			return t.Format(model.CellTimeLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
