package store

import (
	"context"
	"fmt"
	"sync"

	"sheetsync/internal/model"
)

// Memory is an in-process Table. JSONStore persists one to disk.
type Memory struct {
	mu   sync.Mutex
	snap model.Snapshot
}

func NewMemory(snap model.Snapshot) *Memory {
	return &Memory{snap: snap.Clone()}
}

func (m *Memory) Snapshot(context.Context) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *Memory) UpdateCells(_ context.Context, row int, cells map[int]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(row, cells)
}

func (m *Memory) updateLocked(row int, cells map[int]any) error {
	if row < 0 || row >= len(m.snap.Rows) {
		return fmt.Errorf("update row %d: %w", row, ErrRowOutOfRange)
	}
	width := len(m.snap.Rows[row])
	for col := range cells {
		if col < 0 {
			return fmt.Errorf("update row %d: negative column %d", row, col)
		}
		if col+1 > width {
			width = col + 1
		}
	}
	r := m.snap.Rows[row].Clone(width)
	for col, v := range cells {
		r[col] = v
	}
	m.snap.Rows[row] = r
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(row)
}

func (m *Memory) deleteLocked(row int) error {
	if row < 0 || row >= len(m.snap.Rows) {
		return fmt.Errorf("delete row %d: %w", row, ErrRowOutOfRange)
	}
	m.snap.Rows = append(m.snap.Rows[:row], m.snap.Rows[row+1:]...)
	return nil
}

func (m *Memory) AppendRow(_ context.Context, cells model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Rows = append(m.snap.Rows, cells.Clone(len(cells)))
	return nil
}

func (m *Memory) Replace(_ context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	return nil
}
