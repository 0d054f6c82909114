package report

import (
	"fmt"
	"strings"

	"sheetsync/internal/model"
	"sheetsync/internal/reminder"
)

// Deleted announces a row that disappeared from the sheet.
func Deleted(name string) string {
	return fmt.Sprintf("削除__%s", name)
}

// DateChanged announces new start/end dates for a row.
func DateChanged(name, start, end string) string {
	return fmt.Sprintf("日時変更__%s\n- 開始:%s\n- 終了:%s", name, trimSeconds(blankAs(start, "(なし)")), trimSeconds(blankAs(end, "(なし)")))
}

// Reminder is the message for a crossed threshold, e.g. "1日前__歯医者".
func Reminder(tok reminder.Token, name string) string {
	return tok.String() + "__" + name
}

// Classified summarises what was written for an input text.
func Classified(input string, res model.Classification, start, end string) string {
	switch r := res.(type) {
	case model.Schedule:
		return fmt.Sprintf("%q を処理しました\n- 開始:%s\n- 終了:%s\n- 日数%v\n- 名称:%s",
			input, trimSeconds(start), trimSeconds(end), r.DurationDays, r.Title)
	case model.Todo:
		return fmt.Sprintf("%q を処理しました\n- 名称:%s", input, r.Title)
	default:
		return fmt.Sprintf("%q の処理が失敗しました", input)
	}
}

func trimSeconds(s string) string {
	return strings.TrimSuffix(s, ":00Z")
}

func blankAs(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
