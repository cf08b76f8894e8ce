package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/history"
	"github.com/harrison/testmeta/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteTable prints one row per test run with a session footer.
func WriteTable(w io.Writer, doc *models.Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Session %s (%s)", doc.Session.RunID, seconds(doc.Session.Duration)))
	t.AppendHeader(table.Row{"Test", "Run", "Parameters", "Status", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", AutoMerge: true, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Run", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, e := range sortedTests(doc) {
		for i, r := range e.test.Runs {
			t.AppendRow(table.Row{e.test.NodeID, i, formatParams(r.Parameters), statusText(r.Status), seconds(r.Duration)})
		}
	}

	s := doc.Session
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d collected", s.TotalTests),
		"",
		fmt.Sprintf("%d passed, %d failed, %d skipped, %d errors", s.TotalPassed, s.TotalFailed, s.TotalSkipped, s.TotalErrors),
		fmt.Sprintf("exit %d", s.ExitStatus),
		"",
	})
	t.Render()
}

// WriteSessionsTable prints recorded sessions.
func WriteSessionsTable(w io.Writer, sessions []history.SessionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Recorded Sessions")
	t.AppendHeader(table.Row{"Run ID", "Started", "Duration", "Tests", "Passed", "Failed", "Skipped", "Errors", "Exit"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
	})

	for _, s := range sessions {
		started := "-"
		if !s.StartTime.IsZero() {
			started = s.StartTime.Local().Format(time.DateTime)
		}
		t.AppendRow(table.Row{
			s.RunID, started, s.Duration.Round(time.Millisecond),
			s.TotalTests, s.TotalPassed, s.TotalFailed, s.TotalSkipped, s.TotalErrors, s.ExitStatus,
		})
	}
	t.Render()
}

// WriteHistoryTable prints the recorded runs of one test.
func WriteHistoryTable(w io.Writer, runs []history.RunRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if len(runs) > 0 {
		t.SetTitle(fmt.Sprintf("History of %s", runs[0].NodeID))
	}
	t.AppendHeader(table.Row{"Run ID", "Run", "Parameters", "Status", "Stage", "Duration"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.RunID, r.RunIndex, formatParams(r.Parameters), statusText(r.Status), r.FailedStage, r.Duration.Round(time.Millisecond)})
	}
	t.Render()
}

// WriteFlakyTable prints tests with mixed outcomes.
func WriteFlakyTable(w io.Writer, flaky []history.FlakyTest) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Flaky Tests")
	t.AppendHeader(table.Row{"Test", "ID", "Runs", "Passes", "Failures", "Sessions", "Failure Rate"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", WidthMax: 12},
		{Name: "Failure Rate", Align: text.AlignRight},
	})
	for _, f := range flaky {
		t.AppendRow(table.Row{f.NodeID, f.TestID, f.Runs, f.Passes, f.Failures, f.Sessions, fmt.Sprintf("%.0f%%", f.FailureRate()*100)})
	}
	t.Render()
}

func statusText(status string) string {
	if status == "" {
		return "-"
	}
	return strings.ToUpper(status)
}
