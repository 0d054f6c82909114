// Package reminder decides which reminder, if any, is due for an event.
package reminder

import (
	"strings"
	"time"
)

// Token is one reminder threshold, or the Ended sentinel.
type Token uint8

const (
	ThreeDays Token = 1 << iota
	OneDay
	OneHour
	FifteenMinutes
	FiveMinutes
	Ended
)

const sep = "__"

var labels = []struct {
	tok   Token
	label string
}{
	{ThreeDays, "3日前"},
	{OneDay, "1日前"},
	{OneHour, "1時間前"},
	{FifteenMinutes, "15分前"},
	{FiveMinutes, "5分前"},
	{Ended, "終了"},
}

// legacyLabels are older spellings still found in existing status cells.
var legacyLabels = map[string]Token{
	"5〜10分前": FiveMinutes,
}

func (t Token) String() string {
	for _, l := range labels {
		if l.tok == t {
			return l.label
		}
	}
	return ""
}

// Status is the set of tokens already recorded for a row.
type Status Token

// ParseStatus reads the cell form, e.g. "3日前__1日前__". Unknown fragments
// are ignored.
func ParseStatus(s string) Status {
	var st Status
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if tok, ok := legacyLabels[part]; ok {
			st |= Status(tok)
			continue
		}
		for _, l := range labels {
			if l.label == part {
				st |= Status(l.tok)
			}
		}
	}
	return st
}

func (s Status) Has(t Token) bool { return Token(s)&t != 0 }

func (s Status) With(t Token) Status { return s | Status(t) }

// String renders the cell form in threshold order; Ended is written as
// "__終了__".
func (s Status) String() string {
	var sb strings.Builder
	for _, l := range labels {
		if !s.Has(l.tok) {
			continue
		}
		if l.tok == Ended {
			sb.WriteString(sep)
		}
		sb.WriteString(l.label)
		sb.WriteString(sep)
	}
	return sb.String()
}

// window is a range of remaining time in which a threshold may fire.
type window struct {
	tok      Token
	lo, hi   time.Duration
	closedHi bool
}

func (w window) contains(d time.Duration) bool {
	if d < w.lo {
		return false
	}
	if w.closedHi {
		return d <= w.hi
	}
	return d < w.hi
}

const day = 24 * time.Hour

// Order matters: windows overlap and the first unfired match wins.
var windows = []window{
	{ThreeDays, 2 * day, 3 * day, true},
	{OneDay, 0, day, true},
	{OneHour, 0, time.Hour, false},
	{FifteenMinutes, 14 * time.Minute, 20 * time.Minute, false},
	{FiveMinutes, 0, 10 * time.Minute, false},
}

// Decision is the outcome of one evaluation.
type Decision struct {
	// Fire is the threshold to announce; zero when nothing is due.
	Fire Token
	// Status is the updated status to store.
	Status Status
	// Changed reports whether Status differs from the input.
	Changed bool
}

// Evaluate checks the thresholds for an event starting at start. At most one
// token is added per call. Once the event has started the Ended sentinel is
// recorded silently and later calls do nothing.
func Evaluate(st Status, start, now time.Time) Decision {
	if st.Has(Ended) {
		return Decision{Status: st}
	}
	remaining := start.Sub(now)
	if remaining < 0 {
		return Decision{Status: st.With(Ended), Changed: true}
	}
	for _, w := range windows {
		if w.contains(remaining) && !st.Has(w.tok) {
			return Decision{Fire: w.tok, Status: st.With(w.tok), Changed: true}
		}
	}
	return Decision{Status: st}
}
