package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sheetsync/internal/model"
)

type fileState struct {
	Header []string    `json:"header"`
	Rows   []model.Row `json:"rows"`
}

// JSONStore is a Table kept in a single JSON file. Every mutation rewrites
// the file through a temp file and rename.
type JSONStore struct {
	path string
	mu   sync.Mutex
	mem  *Memory
}

// OpenJSON loads path, starting empty when the file does not exist.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.mem = NewMemory(snap)
	return s, nil
}

func (s *JSONStore) load() (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, nil
		}
		return model.Snapshot{}, fmt.Errorf("read table: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.Snapshot{}, fmt.Errorf("parse table: %w", err)
	}
	return model.Snapshot{Header: st.Header, Rows: st.Rows}, nil
}

func (s *JSONStore) save(ctx context.Context) error {
	snap, _ := s.mem.Snapshot(ctx)
	data, _ := json.MarshalIndent(fileState{Header: snap.Header, Rows: snap.Rows}, "", "  ")
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	return s.mem.Snapshot(ctx)
}

func (s *JSONStore) UpdateCells(ctx context.Context, row int, cells map[int]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.UpdateCells(ctx, row, cells); err != nil {
		return err
	}
	return s.save(ctx)
}

func (s *JSONStore) DeleteRow(ctx context.Context, row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.DeleteRow(ctx, row); err != nil {
		return err
	}
	return s.save(ctx)
}

func (s *JSONStore) AppendRow(ctx context.Context, cells model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.AppendRow(ctx, cells); err != nil {
		return err
	}
	return s.save(ctx)
}

func (s *JSONStore) Replace(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Replace(ctx, snap); err != nil {
		return err
	}
	return s.save(ctx)
}
