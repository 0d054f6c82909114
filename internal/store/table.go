package store

import (
	"context"
	"errors"

	"sheetsync/internal/model"
)

// ErrRowOutOfRange is returned when a row position does not exist.
var ErrRowOutOfRange = errors.New("row out of range")

// Table is a header row plus positional data rows. Row positions are
// zero-based and exclude the header.
type Table interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
	// UpdateCells writes every given column of one row in a single call.
	UpdateCells(ctx context.Context, row int, cells map[int]any) error
	DeleteRow(ctx context.Context, row int) error
	AppendRow(ctx context.Context, cells model.Row) error
	// Replace overwrites the whole table, header included.
	Replace(ctx context.Context, snap model.Snapshot) error
}
