package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/robfig/cron/v3"

	"sheetsync/internal/classifier"
	"sheetsync/internal/config"
	"sheetsync/internal/feishu"
	"sheetsync/internal/metrics"
	"sheetsync/internal/model"
	"sheetsync/internal/notify"
	"sheetsync/internal/reconcile"
	"sheetsync/internal/reminder"
	"sheetsync/internal/report"
	"sheetsync/internal/store"
	"sheetsync/internal/translate"
	"sheetsync/internal/updater"
)

// Deps are the collaborators of one App. Translator may be nil.
type Deps struct {
	Live       store.Table
	Cache      store.Table
	Classifier updater.Classifier
	Translator updater.Translator
	Notifier   notify.Notifier
	Columns    model.ColumnNames
	Location   *time.Location
	// NotifyOnClassify sends a summary for every classified row.
	NotifyOnClassify bool
	Now              func() time.Time
	Logger           *slog.Logger
}

type App struct {
	deps Deps
	dbs  []*sql.DB
}

// Summary describes one completed run.
type Summary struct {
	RunID          string
	Reconcile      reconcile.Result
	Classified     int
	ClassifyFailed int
	Reminders      int
}

// NewWithDeps wires an App from ready collaborators.
func NewWithDeps(d Deps) *App {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	return &App{deps: d}
}

// New builds the stores and clients described by cfg.
func New(cfg config.Runtime, logger *slog.Logger) (*App, error) {
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	var larkClient *lark.Client
	if cfg.Lark.AppID != "" {
		larkClient = feishu.NewClient(feishu.Options{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
			Timeout:   cfg.HTTP.Timeout,
		})
	}

	app := &App{}
	dbs := map[string]*sql.DB{}
	open := func(tc config.TableConfig) (store.Table, error) {
		switch tc.Kind {
		case config.KindSQLite:
			db, ok := dbs[tc.Path]
			if !ok {
				var err error
				if db, err = store.OpenSQLite(tc.Path); err != nil {
					return nil, err
				}
				dbs[tc.Path] = db
				app.dbs = append(app.dbs, db)
			}
			return store.NewSQLiteTable(db, tc.Sheet), nil
		case config.KindJSON:
			return store.OpenJSON(tc.Path)
		case config.KindBitable:
			if larkClient == nil {
				return nil, errors.New("bitable store needs lark.app_id and lark.app_secret")
			}
			return feishu.NewBitableTable(larkClient, tc.AppToken, tc.TableID, cfg.Location()), nil
		default:
			return nil, fmt.Errorf("unknown store kind %q", tc.Kind)
		}
	}
	live, err := open(cfg.Live)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open live store: %w", err)
	}
	cache, err := open(cfg.Cache)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	var n notify.Notifier
	switch cfg.Notifier.Kind {
	case config.NotifierLark:
		if larkClient == nil {
			app.Close()
			return nil, errors.New("lark notifier needs lark.app_id and lark.app_secret")
		}
		n = feishu.NewNotifier(larkClient, cfg.Lark.ChatID)
	case config.NotifierNone:
		n = notify.Discard{}
	default:
		n = notify.NewWebhook(cfg.Notifier.URL, cfg.Notifier.Token,
			notify.WithHTTPClient(httpClient), notify.WithRateLimit(cfg.Notifier.RatePerMinute))
	}

	d := Deps{
		Live:             live,
		Cache:            cache,
		Classifier:       classifier.NewClient(cfg.Classifier.URL, cfg.Location(), httpClient),
		Notifier:         n,
		Columns:          cfg.Columns,
		Location:         cfg.Location(),
		NotifyOnClassify: cfg.Notifier.OnClassify,
		Logger:           logger,
	}
	if cfg.Translator.Enabled {
		tr, err := translate.New(translate.Config{
			Endpoint:  cfg.Translator.Endpoint,
			APIKey:    cfg.Translator.APIKey,
			Source:    cfg.Translator.Source,
			Target:    cfg.Translator.Target,
			CacheSize: cfg.Translator.CacheSize,
		}, httpClient)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("create translator: %w", err)
		}
		d.Translator = tr
	}
	built := NewWithDeps(d)
	built.dbs = app.dbs
	return built, nil
}

// Live is the sheet being synchronised.
func (a *App) Live() store.Table { return a.deps.Live }

// Cache is the mirror of the last processed state.
func (a *App) Cache() store.Table { return a.deps.Cache }

// Close releases any databases opened by New.
func (a *App) Close() error {
	var errs []error
	for _, db := range a.dbs {
		errs = append(errs, db.Close())
	}
	a.dbs = nil
	return errors.Join(errs...)
}

// RunOnce performs one full pass: reconcile, classify, remind, then
// overwrite the cache with the resulting live state.
func (a *App) RunOnce(ctx context.Context) (sum Summary, err error) {
	started := time.Now()
	defer func() { metrics.RunDuration.Observe(time.Since(started).Seconds()) }()

	sum = Summary{RunID: uuid.NewString()}
	log := a.deps.Logger.With("run_id", sum.RunID)

	cur, err := a.deps.Live.Snapshot(ctx)
	if err != nil {
		return sum, fmt.Errorf("read live sheet: %w", err)
	}
	old, err := a.deps.Cache.Snapshot(ctx)
	if err != nil {
		return sum, fmt.Errorf("read cache: %w", err)
	}
	cols, err := model.ResolveColumns(cur.Header, a.deps.Columns, a.deps.Translator != nil)
	if err != nil {
		return sum, err
	}

	rec := reconcile.New(a.deps.Live, a.deps.Cache, a.deps.Notifier, log)
	if sum.Reconcile, err = rec.Run(ctx, cur, cols, old); err != nil {
		return sum, err
	}
	log.Info("reconciled", "baseline", sum.Reconcile.Baseline, "appended", sum.Reconcile.Appended,
		"deleted", len(sum.Reconcile.Deleted), "date_changed", len(sum.Reconcile.DateChanged))

	// Anything left undone after a cancellation is picked up by the next run
	// as long as the cache reflects what was already written.
	defer func() {
		if werr := a.syncCache(context.WithoutCancel(ctx)); werr != nil {
			log.Error("cache write failed", "error", werr)
			if err == nil {
				err = werr
			}
		}
	}()

	if err = a.classifyRows(ctx, log, cols, &sum); err != nil {
		return sum, err
	}
	if err = a.remindRows(ctx, log, cols, &sum); err != nil {
		return sum, err
	}
	log.Info("run finished", "classified", sum.Classified, "classify_failed", sum.ClassifyFailed,
		"reminders", sum.Reminders, "elapsed", time.Since(started).Round(time.Millisecond))
	return sum, nil
}

func (a *App) classifyRows(ctx context.Context, log *slog.Logger, cols model.Columns, sum *Summary) error {
	snap, err := a.deps.Live.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read live sheet: %w", err)
	}
	opts := []updater.Option{updater.WithClock(a.deps.Now), updater.WithLogger(log)}
	if a.deps.Translator != nil {
		opts = append(opts, updater.WithTranslator(a.deps.Translator))
	}
	up := updater.New(a.deps.Live, cols, a.deps.Classifier, a.deps.Location, opts...)
	for i, row := range snap.Rows {
		if !up.Eligible(row) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := up.Apply(ctx, i, row)
		if err != nil {
			sum.ClassifyFailed++
			metrics.ClassifyFailures.Inc()
			log.Error("classification failed", "row", i, "error", err)
			continue
		}
		sum.Classified++
		metrics.RowsClassified.WithLabelValues(out.Result.Kind()).Inc()
		if a.deps.NotifyOnClassify {
			a.send(ctx, log, metrics.ReasonClassified, report.Classified(row.Text(cols.InputText), out.Result, out.Start, out.End))
		}
	}
	return nil
}

func (a *App) remindRows(ctx context.Context, log *slog.Logger, cols model.Columns, sum *Summary) error {
	snap, err := a.deps.Live.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read live sheet: %w", err)
	}
	now := a.deps.Now()
	for i, row := range snap.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if model.IsFalse(row.Cell(cols.RemindFlag)) {
			continue
		}
		start, ok := model.CellTime(row.Cell(cols.StartDate), a.deps.Location)
		if !ok {
			continue
		}
		d := reminder.Evaluate(reminder.ParseStatus(row.Text(cols.RemindStatus)), start, now)
		if !d.Changed {
			continue
		}
		if d.Fire != 0 {
			a.send(ctx, log, metrics.ReasonReminder, report.Reminder(d.Fire, row.Text(cols.Name)))
			sum.Reminders++
		}
		if err := a.deps.Live.UpdateCells(ctx, i, map[int]any{cols.RemindStatus: d.Status.String()}); err != nil {
			log.Error("reminder status write failed", "row", i, "error", err)
		}
	}
	return nil
}

func (a *App) syncCache(ctx context.Context) error {
	snap, err := a.deps.Live.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read live sheet: %w", err)
	}
	if err := a.deps.Cache.Replace(ctx, snap); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

func (a *App) send(ctx context.Context, log *slog.Logger, reason, msg string) {
	if err := a.deps.Notifier.Notify(ctx, msg); err != nil {
		metrics.NotifyFailures.Inc()
		log.Error("notify failed", "reason", reason, "error", err)
		return
	}
	metrics.Notifications.WithLabelValues(reason).Inc()
}

// Watch runs RunOnce on the cron expression schedule, evaluated in the configured
// zone, until ctx is cancelled. A run still in progress when the next tick
// arrives causes that tick to be skipped.
func (a *App) Watch(ctx context.Context, schedule string) error {
	c := cron.New(
		cron.WithLocation(a.deps.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := a.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.deps.Logger.Error("run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	a.deps.Logger.Info("watching", "schedule", schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
