package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"sheetsync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sheet_headers (
	sheet  TEXT PRIMARY KEY,
	header TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sheet_rows (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	sheet TEXT NOT NULL,
	cells TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet ON sheet_rows(sheet, id);
`

// OpenSQLite opens the database at path with WAL and a busy timeout and
// creates the sheet tables. ":memory:" is accepted.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return db, nil
}

// SQLiteTable is one named sheet inside a SQLite database. Rows are ordered
// by insertion id; each row's cells are stored as a JSON array.
type SQLiteTable struct {
	db    *sql.DB
	sheet string
}

func NewSQLiteTable(db *sql.DB, sheet string) *SQLiteTable {
	return &SQLiteTable{db: db, sheet: sheet}
}

func (t *SQLiteTable) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	var header string
	err := t.db.QueryRowContext(ctx, `SELECT header FROM sheet_headers WHERE sheet = ?`, t.sheet).Scan(&header)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("read header %s: %w", t.sheet, err)
	default:
		if err := json.Unmarshal([]byte(header), &snap.Header); err != nil {
			return snap, fmt.Errorf("decode header %s: %w", t.sheet, err)
		}
	}

	rows, err := t.db.QueryContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY id`, t.sheet)
	if err != nil {
		return snap, fmt.Errorf("read rows %s: %w", t.sheet, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return snap, err
		}
		var r model.Row
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return snap, fmt.Errorf("decode row %s: %w", t.sheet, err)
		}
		snap.Rows = append(snap.Rows, r)
	}
	return snap, rows.Err()
}

func (t *SQLiteTable) rowAt(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, row int) (int64, model.Row, error) {
	if row < 0 {
		return 0, nil, fmt.Errorf("row %d: %w", row, ErrRowOutOfRange)
	}
	var id int64
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT id, cells FROM sheet_rows WHERE sheet = ? ORDER BY id LIMIT 1 OFFSET ?`, t.sheet, row).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("row %d: %w", row, ErrRowOutOfRange)
	}
	if err != nil {
		return 0, nil, err
	}
	var r model.Row
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return 0, nil, fmt.Errorf("decode row %d: %w", row, err)
	}
	return id, r, nil
}

func (t *SQLiteTable) UpdateCells(ctx context.Context, row int, cells map[int]any) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, r, err := t.rowAt(ctx, tx, row)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.sheet, err)
	}
	width := len(r)
	for col := range cells {
		if col < 0 {
			return fmt.Errorf("update %s row %d: negative column %d", t.sheet, row, col)
		}
		if col+1 > width {
			width = col + 1
		}
	}
	r = r.Clone(width)
	for col, v := range cells {
		r[col] = v
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sheet_rows SET cells = ? WHERE id = ?`, string(data), id); err != nil {
		return fmt.Errorf("update %s row %d: %w", t.sheet, row, err)
	}
	return tx.Commit()
}

func (t *SQLiteTable) DeleteRow(ctx context.Context, row int) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, _, err := t.rowAt(ctx, tx, row)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.sheet, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s row %d: %w", t.sheet, row, err)
	}
	return tx.Commit()
}

func (t *SQLiteTable) AppendRow(ctx context.Context, cells model.Row) error {
	data, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	if _, err := t.db.ExecContext(ctx, `INSERT INTO sheet_rows (sheet, cells) VALUES (?, ?)`, t.sheet, string(data)); err != nil {
		return fmt.Errorf("append %s: %w", t.sheet, err)
	}
	return nil
}

func (t *SQLiteTable) Replace(ctx context.Context, snap model.Snapshot) error {
	header, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?`, t.sheet); err != nil {
		return fmt.Errorf("replace %s: %w", t.sheet, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_headers (sheet, header) VALUES (?, ?)
		 ON CONFLICT(sheet) DO UPDATE SET header = excluded.header`, t.sheet, string(header)); err != nil {
		return fmt.Errorf("replace %s header: %w", t.sheet, err)
	}
	for _, r := range snap.Rows {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO sheet_rows (sheet, cells) VALUES (?, ?)`, t.sheet, string(data)); err != nil {
			return fmt.Errorf("replace %s row: %w", t.sheet, err)
		}
	}
	return tx.Commit()
}
