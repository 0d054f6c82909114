package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/model"
	"sheetsync/internal/store"
)

type recorder struct {
	messages []string
	err      error
}

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.messages = append(r.messages, msg)
	return r.err
}

var header = []string{"名称", "開始日時", "終了日時", "リマインドセット", "文字列インプット", "ステータス", "リマインドステータス", "入力日時", "日数"}

func cols(t *testing.T) model.Columns {
	c, err := model.ResolveColumns(header, model.DefaultColumnNames(), false)
	require.NoError(t, err)
	return c
}

func row(name, start, end, text, status string) model.Row {
	return model.Row{name, start, end, true, text, false, status, "", float64(0)}
}

type fixture struct {
	live, cache *store.Memory
	notes       *recorder
	rec         *Reconciler
}

func setup(liveRows, cacheRows []model.Row) fixture {
	f := fixture{
		live:  store.NewMemory(model.Snapshot{Header: header, Rows: liveRows}),
		cache: store.NewMemory(model.Snapshot{Header: header, Rows: cacheRows}),
		notes: &recorder{},
	}
	f.rec = New(f.live, f.cache, f.notes, nil)
	return f
}

func (f fixture) run(t *testing.T) Result {
	t.Helper()
	ctx := context.Background()
	cur, _ := f.live.Snapshot(ctx)
	old, _ := f.cache.Snapshot(ctx)
	res, err := f.rec.Run(ctx, cur, cols(t), old)
	require.NoError(t, err)
	return res
}

func TestEmptyCacheBecomesBaseline(t *testing.T) {
	f := setup([]model.Row{row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "", "")}, nil)
	f.cache = store.NewMemory(model.Snapshot{})
	f.rec = New(f.live, f.cache, f.notes, nil)

	res := f.run(t)
	assert.True(t, res.Baseline)
	assert.Empty(t, f.notes.messages)

	cached, _ := f.cache.Snapshot(context.Background())
	assert.Equal(t, header, cached.Header)
	assert.Len(t, cached.Rows, 1)
}

func TestGrowthCopiedWithoutNotifications(t *testing.T) {
	a := row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "", "")
	b := row("", "", "", "明日は塾のテスト", "")
	f := setup([]model.Row{a, b}, []model.Row{a})

	res := f.run(t)
	assert.Equal(t, 1, res.Appended)
	assert.Empty(t, f.notes.messages)

	cached, _ := f.cache.Snapshot(context.Background())
	require.Len(t, cached.Rows, 2)
	assert.Equal(t, "明日は塾のテスト", cached.Rows[1].Text(4))
}

func TestDateChangeResetsStatus(t *testing.T) {
	before := row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "", "3日前__1日前__")
	after := row("歯医者", "2024-05-27T10:00:00Z", "2024-05-27T11:00:00Z", "", "3日前__1日前__")
	f := setup([]model.Row{after}, []model.Row{before})

	res := f.run(t)
	assert.Equal(t, []int{0}, res.DateChanged)
	require.Len(t, f.notes.messages, 1)
	assert.True(t, strings.HasPrefix(f.notes.messages[0], "日時変更__歯医者"))

	live, _ := f.live.Snapshot(context.Background())
	assert.Equal(t, "", live.Rows[0].Text(6))

	// The cached dates were refreshed, so a second pass is silent.
	f.notes.messages = nil
	res = f.run(t)
	assert.Empty(t, res.DateChanged)
	assert.Empty(t, f.notes.messages)
}

func TestDeletedRowTombstoneRemovedFromBothStores(t *testing.T) {
	keep := row("買物", "", "", "歯ブラシ", "")
	gone := row("修学旅行", "2024-05-20T07:00:00Z", "2024-05-22T20:00:00Z", "明日から3日間 修学旅行", "")
	tomb := row("", "2024-05-20T07:00:00Z", "2024-05-22T20:00:00Z", "明日から3日間 修学旅行", "")
	f := setup([]model.Row{keep, tomb}, []model.Row{keep, gone})

	res := f.run(t)
	assert.Equal(t, []string{"修学旅行"}, res.Deleted)
	assert.Equal(t, []string{"削除__修学旅行"}, f.notes.messages)

	live, _ := f.live.Snapshot(context.Background())
	cached, _ := f.cache.Snapshot(context.Background())
	require.Len(t, live.Rows, 1)
	require.Len(t, cached.Rows, 1)
	assert.Equal(t, "買物", live.Rows[0].Text(0))
	assert.Equal(t, "買物", cached.Rows[0].Text(0))
}

func TestDeletedRowAlreadyRemovedFromLive(t *testing.T) {
	a := row("A", "2024-05-20T07:00:00Z", "", "", "")
	b := row("B", "2024-05-21T07:00:00Z", "", "", "")
	c := row("C", "2024-05-22T07:00:00Z", "", "", "")
	f := setup([]model.Row{a, c}, []model.Row{a, b, c})

	res := f.run(t)
	assert.Equal(t, []string{"B"}, res.Deleted)
	// Positions realign after the cached delete: no spurious date change for C.
	assert.Empty(t, res.DateChanged)
	assert.Equal(t, []string{"削除__B"}, f.notes.messages)

	live, _ := f.live.Snapshot(context.Background())
	assert.Len(t, live.Rows, 2)
}

func TestFreshRowAtDeletedPositionIsKept(t *testing.T) {
	a := row("A", "", "", "a", "")
	b := row("B", "", "", "b", "")
	fresh := row("", "", "", "新しい入力", "")
	f := setup([]model.Row{a, fresh}, []model.Row{a, b})

	f.run(t)
	live, _ := f.live.Snapshot(context.Background())
	require.Len(t, live.Rows, 2)
	assert.Equal(t, "新しい入力", live.Rows[1].Text(4))
}

func TestSecondRunIsSilent(t *testing.T) {
	a := row("A", "2024-05-20T07:00:00Z", "2024-05-20T08:00:00Z", "", "")
	f := setup([]model.Row{a}, []model.Row{a})
	f.run(t)
	f.run(t)
	assert.Empty(t, f.notes.messages)
}

func TestNotifyFailureDoesNotStopReconcile(t *testing.T) {
	a := row("A", "", "", "", "")
	f := setup(nil, []model.Row{a})
	f.notes.err = errors.New("line down")

	res := f.run(t)
	assert.Equal(t, []string{"A"}, res.Deleted)
	cached, _ := f.cache.Snapshot(context.Background())
	assert.Empty(t, cached.Rows)
}

func TestRenameInPlaceKeepsAlignment(t *testing.T) {
	before := row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "歯医者", "3日前__")
	renamed := row("歯医者(再診)", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "歯医者", "3日前__")
	juku := row("塾", "2024-05-21T18:00:00Z", "2024-05-21T20:00:00Z", "塾", "3日前__")
	f := setup([]model.Row{renamed, juku}, []model.Row{before, juku})

	res := f.run(t)
	assert.Equal(t, []string{"歯医者"}, res.Deleted)
	assert.Empty(t, res.DateChanged)
	assert.Equal(t, []string{"削除__歯医者"}, f.notes.messages)

	live, _ := f.live.Snapshot(context.Background())
	require.Len(t, live.Rows, 2)
	assert.Equal(t, "3日前__", live.Rows[0].Text(6))
	assert.Equal(t, "3日前__", live.Rows[1].Text(6))

	cached, _ := f.cache.Snapshot(context.Background())
	require.Len(t, cached.Rows, 2)
	assert.Equal(t, "歯医者(再診)", cached.Rows[0].Text(0))
	assert.Equal(t, "塾", cached.Rows[1].Text(0))

	f.notes.messages = nil
	res = f.run(t)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, f.notes.messages)
}

func TestRenameWithNewDatesStillReportsDateChange(t *testing.T) {
	before := row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "", "3日前__")
	after := row("眼科", "2024-05-25T10:00:00Z", "2024-05-25T11:00:00Z", "", "3日前__")
	f := setup([]model.Row{after}, []model.Row{before})

	res := f.run(t)
	assert.Equal(t, []string{"歯医者"}, res.Deleted)
	assert.Equal(t, []int{0}, res.DateChanged)
	require.Len(t, f.notes.messages, 2)
	assert.True(t, strings.HasPrefix(f.notes.messages[1], "日時変更__眼科"))
}

func TestClearedNameWithNewInputKeepsLaterRows(t *testing.T) {
	gone := row("歯医者", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "歯医者", "3日前__")
	reused := row("", "2024-05-20T10:00:00Z", "2024-05-20T11:00:00Z", "来週の月曜 眼科", "3日前__")
	juku := row("塾", "2024-05-21T18:00:00Z", "2024-05-21T20:00:00Z", "塾", "1日前__")
	f := setup([]model.Row{reused, juku}, []model.Row{gone, juku})

	res := f.run(t)
	assert.Empty(t, res.DateChanged)
	live, _ := f.live.Snapshot(context.Background())
	require.Len(t, live.Rows, 2)
	assert.Equal(t, "来週の月曜 眼科", live.Rows[0].Text(4))
	assert.Equal(t, "1日前__", live.Rows[1].Text(6))
}
