package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/model"
	"sheetsync/internal/store"
)

var header = []string{"名称", "開始日時", "終了日時", "リマインドセット", "文字列インプット", "ステータス", "リマインドステータス", "入力日時", "日数"}

var tokyo = time.FixedZone("JST", 9*60*60)

// now is 2024-01-01 09:00 in Tokyo.
var now = time.Date(2024, 1, 1, 9, 0, 0, 0, tokyo)

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]model.Classification
	calls   []string
	called  chan struct{}
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (model.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	res, ok := f.results[text]
	if !ok {
		return nil, errors.New("classifier unavailable")
	}
	return res, nil
}

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

type fixture struct {
	live, cache *store.Memory
	cls         *fakeClassifier
	notes       *recorder
	app         *App
}

func setup(liveRows, cacheRows []model.Row) *fixture {
	f := &fixture{
		live:  store.NewMemory(model.Snapshot{Header: header, Rows: liveRows}),
		cache: store.NewMemory(model.Snapshot{Header: header, Rows: cacheRows}),
		cls:   &fakeClassifier{results: map[string]model.Classification{}},
		notes: &recorder{},
	}
	if cacheRows == nil {
		f.cache = store.NewMemory(model.Snapshot{})
	}
	f.app = NewWithDeps(Deps{
		Live:       f.live,
		Cache:      f.cache,
		Classifier: f.cls,
		Notifier:   f.notes,
		Columns:    model.DefaultColumnNames(),
		Location:   tokyo,
		Now:        func() time.Time { return now },
	})
	return f
}

func input(text string) model.Row {
	return model.Row{"", "", "", "", text, "", "", "", ""}
}

func event(name, start string) model.Row {
	return model.Row{name, start, start, true, name, false, "", "", float64(0)}
}

func (f *fixture) rows(t *testing.T) []model.Row {
	t.Helper()
	snap, err := f.live.Snapshot(context.Background())
	require.NoError(t, err)
	return snap.Rows
}

func TestRunClassifiesScheduleRow(t *testing.T) {
	f := setup([]model.Row{input("Meeting with Bob tomorrow 3pm")}, nil)
	f.cls.results["Meeting with Bob tomorrow 3pm"] = model.Schedule{
		Title:        "Meeting with Bob",
		Start:        time.Date(2024, 1, 2, 15, 0, 0, 0, tokyo),
		End:          time.Date(2024, 1, 2, 16, 0, 0, 0, tokyo),
		DurationDays: 0,
	}

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.True(t, sum.Reconcile.Baseline)
	assert.Equal(t, 1, sum.Classified)

	row := f.rows(t)[0]
	assert.Equal(t, "Meeting with Bob", row[0])
	assert.Equal(t, "2024-01-02T15:00:00Z", row[1])
	assert.Equal(t, "2024-01-02T16:00:00Z", row[2])
	assert.Equal(t, true, row[3])
	assert.Equal(t, false, row[5])
	assert.Equal(t, "2024-01-01T00:00:00.000Z", row[7])
	assert.Empty(t, f.notes.take())

	cached, err := f.cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.rows(t), cached.Rows)
}

func TestSecondRunIsSilent(t *testing.T) {
	f := setup([]model.Row{
		event("歯医者", "2024-01-01T21:00:00Z"),
		input("歯ブラシ"),
	}, nil)
	f.cls.results["歯ブラシ"] = model.Todo{Title: "歯ブラシ", Category: "買物"}

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Reminders)
	assert.Equal(t, []string{"1日前__歯医者"}, f.notes.take())
	assert.Equal(t, "1日前__", f.rows(t)[0][6])

	sum, err = f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Classified)
	assert.Zero(t, sum.Reminders)
	assert.Empty(t, sum.Reconcile.Deleted)
	assert.Empty(t, sum.Reconcile.DateChanged)
	assert.Empty(t, f.notes.take())
	assert.Len(t, f.cls.calls, 1)
}

func TestDeletedRowLeavesBothStores(t *testing.T) {
	cached := []model.Row{event("会議", "2024-02-01T10:00:00Z"), event("歯医者", "2024-02-02T10:00:00Z")}
	tomb := event("", "2024-02-02T10:00:00Z")
	tomb[4] = ""
	f := setup([]model.Row{event("会議", "2024-02-01T10:00:00Z"), tomb}, cached)

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"歯医者"}, sum.Reconcile.Deleted)
	assert.Equal(t, []string{"削除__歯医者"}, f.notes.take())
	require.Len(t, f.rows(t), 1)
	snap, _ := f.cache.Snapshot(context.Background())
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "会議", snap.Rows[0][0])
}

func TestDateChangeResetsReminderStatus(t *testing.T) {
	old := event("会議", "2024-01-01T21:00:00Z")
	old[6] = "1日前__"
	moved := event("会議", "2024-01-10T10:00:00Z")
	moved[6] = "1日前__"
	f := setup([]model.Row{moved}, []model.Row{old})

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sum.Reconcile.DateChanged)
	msgs := f.notes.take()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "日時変更__会議")
	assert.Equal(t, "", f.rows(t)[0][6])
}

func TestExplicitFalseRemindFlagSkipsReminders(t *testing.T) {
	row := event("歯医者", "2024-01-01T21:00:00Z")
	row[3] = false
	f := setup([]model.Row{row}, nil)

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Reminders)
	assert.Empty(t, f.notes.take())
}

func TestStartedEventIsMarkedEndedSilently(t *testing.T) {
	f := setup([]model.Row{event("朝会", "2024-01-01T08:00:00Z")}, nil)

	_, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.notes.take())
	assert.Equal(t, "__終了__", f.rows(t)[0][6])
}

func TestClassifyFailureDoesNotStopBatch(t *testing.T) {
	f := setup([]model.Row{input("壊れた入力"), input("牛乳")}, nil)
	f.cls.results["牛乳"] = model.Todo{Title: "牛乳"}

	sum, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ClassifyFailed)
	assert.Equal(t, 1, sum.Classified)
	rows := f.rows(t)
	assert.Equal(t, "", rows[0][0])
	assert.Equal(t, "牛乳", rows[1][0])
}

func TestMissingColumnIsFatal(t *testing.T) {
	f := setup(nil, nil)
	f.live = store.NewMemory(model.Snapshot{Header: []string{"名称", "開始日時"}, Rows: []model.Row{{"", "x"}}})
	f.app.deps.Live = f.live

	_, err := f.app.RunOnce(context.Background())
	var missing *model.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Missing, "終了日時")
	assert.Empty(t, f.cls.calls)
}

func TestCancelledRunStillWritesCache(t *testing.T) {
	f := setup([]model.Row{input("牛乳")}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.app.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.cls.calls)
	snap, _ := f.cache.Snapshot(context.Background())
	assert.Equal(t, header, snap.Header)
	assert.Len(t, snap.Rows, 1)
}

func TestWatchRunsOnSchedule(t *testing.T) {
	f := setup([]model.Row{input("牛乳")}, nil)
	f.cls.results["牛乳"] = model.Todo{Title: "牛乳"}
	f.cls.called = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Watch(ctx, "@every 1s") }()

	select {
	case <-f.cls.called:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not run")
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, "牛乳", f.rows(t)[0][0])
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	f := setup(nil, nil)
	err := f.app.Watch(context.Background(), "not a schedule")
	require.Error(t, err)
}
