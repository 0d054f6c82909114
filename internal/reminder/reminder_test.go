package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func TestParseStatus(t *testing.T) {
	st := ParseStatus("3日前__1日前__")
	assert.True(t, st.Has(ThreeDays))
	assert.True(t, st.Has(OneDay))
	assert.False(t, st.Has(OneHour))
	assert.Equal(t, "3日前__1日前__", st.String())

	// "15分前" must not be read as "5分前".
	st = ParseStatus("15分前__")
	assert.True(t, st.Has(FifteenMinutes))
	assert.False(t, st.Has(FiveMinutes))

	st = ParseStatus("3日前____終了__")
	assert.True(t, st.Has(Ended))
	assert.Equal(t, "3日前____終了__", st.String())

	// Sheets written before the token was shortened.
	st = ParseStatus("1日前__5〜10分前__")
	assert.True(t, st.Has(FiveMinutes))
	assert.Equal(t, "1日前__5分前__", st.String())

	assert.Equal(t, Status(0), ParseStatus(""))
	assert.Equal(t, Status(0), ParseStatus("garbage"))
}

func TestEvaluateWindows(t *testing.T) {
	cases := []struct {
		name      string
		remaining time.Duration
		status    string
		want      Token
	}{
		{"three days", 2*day + 12*time.Hour, "", ThreeDays},
		{"three days upper bound", 3 * day, "", ThreeDays},
		{"gap between windows", 1*day + 12*time.Hour, "", 0},
		{"half a day fires one day only", 12 * time.Hour, "", OneDay},
		{"one day already sent", 12 * time.Hour, "1日前__", 0},
		{"one hour after one day", 30 * time.Minute, "1日前__", OneHour},
		{"fifteen minutes", 15 * time.Minute, "1日前__1時間前__", FifteenMinutes},
		{"between fifteen and five", 12 * time.Minute, "1日前__1時間前__15分前__", 0},
		{"five minutes", 5 * time.Minute, "1日前__1時間前__15分前__", FiveMinutes},
		{"all sent", 5 * time.Minute, "1日前__1時間前__15分前__5分前__", 0},
		{"three days lower bound", 2 * day, "", ThreeDays},
		{"one hour upper bound is open", time.Hour, "1日前__", 0},
		{"fifteen minutes lower bound", 14 * time.Minute, "1日前__1時間前__", FifteenMinutes},
		{"fifteen minutes upper bound is open", 20 * time.Minute, "1日前__1時間前__", 0},
		{"five minutes upper bound is open", 10 * time.Minute, "1日前__1時間前__15分前__", 0},
		{"far future", 10 * day, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(ParseStatus(tc.status), now.Add(tc.remaining), now)
			assert.Equal(t, tc.want, d.Fire)
			assert.Equal(t, tc.want != 0, d.Changed)
			if tc.want != 0 {
				assert.True(t, d.Status.Has(tc.want))
			}
		})
	}
}

func TestEvaluateNeverRepeatsAToken(t *testing.T) {
	start := now.Add(12 * time.Hour)
	st := Status(0)
	fired := map[Token]int{}
	for i := 0; i < 5; i++ {
		d := Evaluate(st, start, now)
		if d.Fire != 0 {
			fired[d.Fire]++
		}
		st = d.Status
	}
	assert.Equal(t, map[Token]int{OneDay: 1}, fired)
}

func TestEvaluateEnded(t *testing.T) {
	d := Evaluate(ParseStatus("1日前__"), now.Add(-time.Minute), now)
	assert.Equal(t, Token(0), d.Fire)
	assert.True(t, d.Changed)
	assert.True(t, d.Status.Has(Ended))

	d = Evaluate(d.Status, now.Add(5*time.Minute), now)
	assert.False(t, d.Changed)
	assert.Equal(t, Token(0), d.Fire)
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, "1時間前", OneHour.String())
	assert.Equal(t, "", Token(0).String())
}
