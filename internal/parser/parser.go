package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	scheduleMarker  = regexp.MustCompile(`\[schedule,`)
	schedulePattern = regexp.MustCompile(`カテゴリ:[^\[]*\[schedule,\{\s*` +
		`"date":\s*"(?P<date>\d{1,2}/\d{1,2})",\s*` +
		`"start_time":\s*"(?P<start>\d{2}:\d{2}:\d{2})",\s*` +
		`"end_time":\s*"(?P<end>\d{2}:\d{2}:\d{2})",\s*` +
		`"duration":\s*(?P<duration>\d+),\s*` +
		`"event":\s*"(?P<event>.*?)"\s*\}\]`)
	todoPattern = regexp.MustCompile(`カテゴリ:[^\[]*\[todo,([^,\]]+),([^,\]]+)\]`)
)

// ErrUnrecognised is returned when an answer matches neither format.
var ErrUnrecognised = errors.New("unrecognised answer format")

// Schedule is the payload of a schedule answer, in the classifier wire form.
type Schedule struct {
	DTSTART  string `json:"DTSTART"`
	DTEND    string `json:"DTEND"`
	Duration int    `json:"duration"`
	Title    string `json:"title"`
}

// IsSchedule reports whether the answer carries a schedule block.
func IsSchedule(answer string) bool {
	return scheduleMarker.MatchString(answer)
}

// ParseAnswer converts a chat answer into the classifier result pair:
// ["schedule", Schedule] or ["todo", item, category]. The answer's MM/DD date
// is placed in now's year.
func ParseAnswer(answer string, now time.Time) ([]any, error) {
	if IsSchedule(answer) {
		sc, err := parseSchedule(answer, now)
		if err != nil {
			return nil, err
		}
		return []any{"schedule", sc}, nil
	}
	m := todoPattern.FindStringSubmatch(answer)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognised, truncate(answer, 80))
	}
	return []any{"todo", strings.TrimSpace(m[1]), strings.TrimSpace(m[2])}, nil
}

func parseSchedule(answer string, now time.Time) (Schedule, error) {
	m := schedulePattern.FindStringSubmatch(answer)
	if m == nil {
		return Schedule{}, fmt.Errorf("%w: schedule block: %q", ErrUnrecognised, truncate(answer, 80))
	}
	group := func(name string) string { return m[schedulePattern.SubexpIndex(name)] }

	month, day, _ := strings.Cut(group("date"), "/")
	mm, _ := strconv.Atoi(month)
	dd, _ := strconv.Atoi(day)
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return Schedule{}, fmt.Errorf("%w: date %q", ErrUnrecognised, group("date"))
	}
	date := fmt.Sprintf("%04d-%02d-%02d", now.Year(), mm, dd)
	duration, _ := strconv.Atoi(group("duration"))
	return Schedule{
		DTSTART:  date + "T" + group("start") + ".000Z",
		DTEND:    date + "T" + group("end") + ".000Z",
		Duration: duration,
		Title:    group("event"),
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
