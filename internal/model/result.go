package model

import "time"

// Classification is the outcome of classifying a row's input text. It is
// either a Schedule or a Todo.
type Classification interface {
	Kind() string
}

// Schedule is an event with a start and end.
type Schedule struct {
	Title        string
	Start        time.Time
	End          time.Time
	DurationDays float64
}

// Todo is a task without a date.
type Todo struct {
	Title    string
	Category string
}

func (Schedule) Kind() string { return "schedule" }
func (Todo) Kind() string     { return "todo" }
