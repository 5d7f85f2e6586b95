package model

import (
	"encoding/json"
	"time"
)

// Layouts used when a When is rendered as ISO-8601 text.
const (
	DateLayout          = "2006-01-02"
	FloatingLayout      = "2006-01-02T15:04:05"
	ZonedDateTimeLayout = time.RFC3339
)

// When is a DTSTART/DTEND value. A pure calendar date and a date-time are
// kept distinct; a date-time is either zoned (UTC or a resolved TZID) or
// floating (no zone information in the source).
type When struct {
	Time     time.Time
	DateOnly bool
	Floating bool
}

// String renders w as ISO-8601: "2024-03-05" for dates,
// "2024-03-05T09:00:00" for floating date-times and
// "2024-03-05T09:00:00+09:00" (or "...Z") for zoned ones.
func (w When) String() string {
	switch {
	case w.DateOnly:
		return w.Time.Format(DateLayout)
	case w.Floating:
		return w.Time.Format(FloatingLayout)
	default:
		return w.Time.Format(ZonedDateTimeLayout)
	}
}

func (w When) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// Task is one checklist item found in an event description.
type Task struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Event is the canonical, serializable form of one decoded VEVENT.
//
// uid, summary, description, source_file and tasks are always present in the
// JSON output; the rest appear only when the source event declared them.
type Event struct {
	UID         string `json:"uid"`
	Summary     string `json:"summary"`
	Description string `json:"description"`

	Start   *When  `json:"start,omitempty"`
	End     *When  `json:"end,omitempty"`
	StartTZ string `json:"start_tzid,omitempty"`
	EndTZ   string `json:"end_tzid,omitempty"`

	Location       string `json:"location,omitempty"`
	RecurrenceRule string `json:"recurrence_rule,omitempty"`

	SourceFile string `json:"source_file"`
	Tasks      []Task `json:"tasks"`
}

// OpenTasks returns the tasks of e that are not completed yet.
func (e Event) OpenTasks() []Task {
	out := make([]Task, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// CountTasks returns the total and completed task counts across events.
func CountTasks(events []Event) (total, completed int) {
	for _, e := range events {
		total += len(e.Tasks)
		for _, t := range e.Tasks {
			if t.Completed {
				completed++
			}
		}
	}
	return total, completed
}
