package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"schedimport/internal/model"
)

func TestRender(t *testing.T) {
	events := []model.Event{
		{
			Summary:    "Tiger Month intentions",
			SourceFile: "a.ics",
			Start:      &model.When{Time: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), DateOnly: true},
			Tasks:      []model.Task{{Text: "a"}, {Text: "b", Completed: true}},
		},
		{Summary: "No start", SourceFile: "b.ics", Tasks: []model.Task{}},
	}

	var buf bytes.Buffer
	Render(&buf, events)
	out := buf.String()
	for _, want := range []string{"Tiger Month intentions", "2024-03-05", "a.ics", "b.ics", "2 events"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "╭") {
		t.Errorf("non-terminal output should use ASCII style:\n%s", out)
	}
}
