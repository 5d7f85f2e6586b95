// Package report prints a human-readable summary of an import.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"schedimport/internal/model"
)

const maxSummaryWidth = 48

// Render draws one row per event with its task counts, plus a totals
// footer. Terminals get rounded box drawing; pipes get plain ASCII.
func Render(w io.Writer, events []model.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	tw.Style().Format.Footer = text.FormatDefault

	tw.AppendHeader(table.Row{"Start", "Summary", "Source", "Tasks", "Done"})
	for _, ev := range events {
		total, done := model.CountTasks([]model.Event{ev})
		tw.AppendRow(table.Row{
			startLabel(ev),
			text.Trim(ev.Summary, maxSummaryWidth),
			ev.SourceFile,
			strconv.Itoa(total),
			strconv.Itoa(done),
		})
	}

	total, done := model.CountTasks(events)
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d events", len(events)), "", strconv.Itoa(total), strconv.Itoa(done)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	tw.Render()
}

func startLabel(ev model.Event) string {
	if ev.Start == nil {
		return "-"
	}
	return ev.Start.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
