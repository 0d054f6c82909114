// Package updater writes classifier results into untitled rows.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sheetsync/internal/model"
	"sheetsync/internal/store"
)

// Classifier turns free text into a schedule or todo.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Classification, error)
}

// Translator translates free text into the configured target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Updater struct {
	table      store.Table
	cols       model.Columns
	classifier Classifier
	translator Translator
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// Option customises an Updater.
type Option func(*Updater)

// WithTranslator enables the translated-text column.
func WithTranslator(t Translator) Option { return func(u *Updater) { u.translator = t } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(u *Updater) { u.now = now } }

func WithLogger(l *slog.Logger) Option { return func(u *Updater) { u.logger = l } }

func New(table store.Table, cols model.Columns, c Classifier, loc *time.Location, opts ...Option) *Updater {
	u := &Updater{table: table, cols: cols, classifier: c, loc: loc, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Eligible reports whether row should be classified: no name yet, some input.
func (u *Updater) Eligible(row model.Row) bool {
	return row.Text(u.cols.Name) == "" && row.Text(u.cols.InputText) != ""
}

// Outcome is what Apply wrote.
type Outcome struct {
	Result model.Classification
	Start  string
	End    string
}

// Apply classifies the row at position pos and writes every resulting cell
// in one UpdateCells call. Ineligible rows are skipped with a zero Outcome.
// On error nothing has been written.
func (u *Updater) Apply(ctx context.Context, pos int, row model.Row) (Outcome, error) {
	if !u.Eligible(row) {
		return Outcome{}, nil
	}
	text := row.Text(u.cols.InputText)
	res, err := u.classifier.Classify(ctx, text)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify row %d: %w", pos, err)
	}

	inputDate := u.now().UTC().Format(model.InputDateLayout)
	cells := map[int]any{}
	out := Outcome{Result: res}
	switch r := res.(type) {
	case model.Schedule:
		out.Start = model.FormatWallClock(r.Start, u.loc)
		out.End = model.FormatWallClock(r.End, u.loc)
		cells[u.cols.StartDate] = out.Start
		cells[u.cols.EndDate] = out.End
		cells[u.cols.Name] = r.Title
		cells[u.cols.RemindFlag] = true
		cells[u.cols.Status] = false
		cells[u.cols.InputDate] = inputDate
		cells[u.cols.Duration] = r.DurationDays
	case model.Todo:
		cells[u.cols.Name] = r.Title
		cells[u.cols.Status] = false
		cells[u.cols.InputDate] = inputDate
	default:
		return Outcome{}, fmt.Errorf("classify row %d: unexpected result %T", pos, res)
	}

	if u.translator != nil && u.cols.Translated >= 0 {
		translated, err := u.translator.Translate(ctx, text)
		if err != nil {
			u.logger.Warn("translation failed", "row", pos, "error", err)
		} else {
			cells[u.cols.Translated] = translated
		}
	}

	if err := u.table.UpdateCells(ctx, pos, cells); err != nil {
		return Outcome{}, fmt.Errorf("write row %d: %w", pos, err)
	}
	return out, nil
}
