package model

import (
	"fmt"
	"strings"
)

// ColumnNames are the header labels of the columns the sync reads and writes.
type ColumnNames struct {
	Name           string `mapstructure:"name"`
	StartDate      string `mapstructure:"start_date"`
	EndDate        string `mapstructure:"end_date"`
	RemindFlag     string `mapstructure:"remind_flag"`
	InputText      string `mapstructure:"input_text"`
	Status         string `mapstructure:"status"`
	RemindStatus   string `mapstructure:"remind_status"`
	InputDate      string `mapstructure:"input_date"`
	Duration       string `mapstructure:"duration"`
	TranslatedText string `mapstructure:"translated_text"`
}

// DefaultColumnNames returns the header labels used by the household sheet.
func DefaultColumnNames() ColumnNames {
	return ColumnNames{
		Name:           "名称",
		StartDate:      "開始日時",
		EndDate:        "終了日時",
		RemindFlag:     "リマインドセット",
		InputText:      "文字列インプット",
		Status:         "ステータス",
		RemindStatus:   "リマインドステータス",
		InputDate:      "入力日時",
		Duration:       "日数",
		TranslatedText: "翻訳",
	}
}

// Columns holds the positional index of every known column. Translated is
// -1 when translation is disabled.
type Columns struct {
	Name         int
	StartDate    int
	EndDate      int
	RemindFlag   int
	InputText    int
	Status       int
	RemindStatus int
	InputDate    int
	Duration     int
	Translated   int
}

// MissingColumnsError lists header labels absent from a table.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", "))
}

// ResolveColumns maps header labels to indexes. Every label is required,
// except the translated-text column when withTranslation is false.
func ResolveColumns(header []string, names ColumnNames, withTranslation bool) (Columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	var missing []string
	lookup := func(label string) int {
		i, ok := index[strings.TrimSpace(label)]
		if !ok || label == "" {
			missing = append(missing, label)
			return -1
		}
		return i
	}
	cols := Columns{
		Name:         lookup(names.Name),
		StartDate:    lookup(names.StartDate),
		EndDate:      lookup(names.EndDate),
		RemindFlag:   lookup(names.RemindFlag),
		InputText:    lookup(names.InputText),
		Status:       lookup(names.Status),
		RemindStatus: lookup(names.RemindStatus),
		InputDate:    lookup(names.InputDate),
		Duration:     lookup(names.Duration),
		Translated:   -1,
	}
	if withTranslation {
		cols.Translated = lookup(names.TranslatedText)
	}
	if len(missing) > 0 {
		return Columns{}, &MissingColumnsError{Missing: missing}
	}
	return cols, nil
}

// Width is the minimum row length that covers every resolved column.
func (c Columns) Width() int {
	w := 0
	for _, i := range []int{c.Name, c.StartDate, c.EndDate, c.RemindFlag, c.InputText, c.Status, c.RemindStatus, c.InputDate, c.Duration, c.Translated} {
		if i+1 > w {
			w = i + 1
		}
	}
	return w
}
