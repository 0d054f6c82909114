package model

import (
	"fmt"
	"strings"
	"time"
)

// CellTimeLayout is how start and end dates are written to the sheet. The
// trailing Z is literal: the value is wall-clock time in the configured zone.
const CellTimeLayout = "2006-01-02T15:04:05Z"

// InputDateLayout is the ISO 8601 form written to the input-date cell.
const InputDateLayout = "2006-01-02T15:04:05.000Z07:00"

var wallClockLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseWallClock reads a date-time string. Values with an explicit numeric
// offset are converted into loc; all other forms, including a bare trailing
// Z, are read as wall-clock time in loc.
func ParseWallClock(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if !strings.HasSuffix(s, "Z") {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), nil
		}
		if t, err := time.Parse("2006-01-02 15:04:05-07:00", s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// FormatWallClock renders t in loc using CellTimeLayout.
func FormatWallClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(CellTimeLayout)
}

// CellTime interprets a start or end cell. Strings go through ParseWallClock;
// time values are used as they are.
func CellTime(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := ParseWallClock(t, loc)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}
