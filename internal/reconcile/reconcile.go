// Package reconcile compares the live sheet with the cached mirror of the
// previous run and reports deleted rows and changed dates.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"sheetsync/internal/metrics"
	"sheetsync/internal/model"
	"sheetsync/internal/notify"
	"sheetsync/internal/report"
	"sheetsync/internal/store"
)

// Result summarises one reconciliation.
type Result struct {
	Baseline    bool
	Appended    int
	Deleted     []string
	DateChanged []int
}

type Reconciler struct {
	live     store.Table
	cache    store.Table
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(live, cache store.Table, n notify.Notifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{live: live, cache: cache, notifier: n, logger: logger}
}

// Run diffs cur (the live snapshot, laid out by cols) against old (the
// cached snapshot). Rows are matched by position. An empty or differently
// shaped cache is reset to cur without notifications.
func (r *Reconciler) Run(ctx context.Context, cur model.Snapshot, cols model.Columns, old model.Snapshot) (Result, error) {
	if !slices.Equal(cur.Header, old.Header) {
		if len(old.Header) > 0 {
			r.logger.Warn("cached header differs from live header, resetting baseline")
		}
		if err := r.cache.Replace(ctx, cur); err != nil {
			return Result{}, fmt.Errorf("reset cache: %w", err)
		}
		return Result{Baseline: true}, nil
	}

	cur = cur.Clone()
	old = old.Clone()
	var res Result

	for i := len(old.Rows); i < len(cur.Rows); i++ {
		if err := r.cache.AppendRow(ctx, cur.Rows[i]); err != nil {
			return res, fmt.Errorf("copy row %d to cache: %w", i, err)
		}
		old.Rows = append(old.Rows, cur.Rows[i].Clone(len(cur.Rows[i])))
		res.Appended++
	}

	present := names(cur.Rows, cols)
	cached := names(old.Rows, cols)
	for i := len(old.Rows) - 1; i >= 0; i-- {
		name := old.Rows[i].Text(cols.Name)
		if name == "" || present[name] {
			continue
		}
		r.send(ctx, metrics.ReasonDeleted, report.Deleted(name))
		res.Deleted = append(res.Deleted, name)

		switch {
		case i < len(cur.Rows) && isTombstone(cur.Rows[i], old.Rows[i], cols):
			if err := r.cache.DeleteRow(ctx, i); err != nil {
				return res, fmt.Errorf("delete cached row %d: %w", i, err)
			}
			if err := r.live.DeleteRow(ctx, i); err != nil {
				return res, fmt.Errorf("delete live row %d: %w", i, err)
			}
			cur.Rows = slices.Delete(cur.Rows, i, i+1)
			old.Rows = slices.Delete(old.Rows, i, i+1)
		case i < len(cur.Rows) && !cached[cur.Rows[i].Text(cols.Name)]:
			// Renamed or reused in place: the live rows did not shift, so
			// the cached row keeps its position and its dates.
			cells := map[int]any{cols.Name: cur.Rows[i].Cell(cols.Name), cols.InputText: cur.Rows[i].Cell(cols.InputText)}
			if err := r.cache.UpdateCells(ctx, i, cells); err != nil {
				return res, fmt.Errorf("rename cached row %d: %w", i, err)
			}
			old.Rows[i] = old.Rows[i].Clone(max(cols.Name, cols.InputText) + 1)
			for col, v := range cells {
				old.Rows[i][col] = v
			}
		default:
			// The row was removed from the live sheet and later rows moved up.
			if err := r.cache.DeleteRow(ctx, i); err != nil {
				return res, fmt.Errorf("delete cached row %d: %w", i, err)
			}
			old.Rows = slices.Delete(old.Rows, i, i+1)
		}
	}

	n := min(len(cur.Rows), len(old.Rows))
	for i := 0; i < n; i++ {
		c, o := cur.Rows[i], old.Rows[i]
		start, end := c.Cell(cols.StartDate), c.Cell(cols.EndDate)
		if model.SameCell(start, o.Cell(cols.StartDate)) && model.SameCell(end, o.Cell(cols.EndDate)) {
			continue
		}
		r.send(ctx, metrics.ReasonDateChanged, report.DateChanged(c.Text(cols.Name), c.Text(cols.StartDate), c.Text(cols.EndDate)))
		if err := r.live.UpdateCells(ctx, i, map[int]any{cols.RemindStatus: ""}); err != nil {
			return res, fmt.Errorf("reset reminder status row %d: %w", i, err)
		}
		if err := r.cache.UpdateCells(ctx, i, map[int]any{cols.StartDate: start, cols.EndDate: end}); err != nil {
			return res, fmt.Errorf("refresh cached dates row %d: %w", i, err)
		}
		res.DateChanged = append(res.DateChanged, i)
	}
	return res, nil
}

func names(rows []model.Row, cols model.Columns) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name := row.Text(cols.Name); name != "" {
			out[name] = true
		}
	}
	return out
}

// isTombstone reports whether the live row at a deleted row's position is
// that same row with its name cleared, rather than an unrelated row that
// shifted into place.
func isTombstone(cur, old model.Row, cols model.Columns) bool {
	if cur.Text(cols.Name) != "" {
		return false
	}
	text := cur.Text(cols.InputText)
	return text == "" || text == old.Text(cols.InputText)
}

func (r *Reconciler) send(ctx context.Context, reason, msg string) {
	if err := r.notifier.Notify(ctx, msg); err != nil {
		metrics.NotifyFailures.Inc()
		r.logger.Error("notify failed", "reason", reason, "error", err)
		return
	}
	metrics.Notifications.WithLabelValues(reason).Inc()
}
