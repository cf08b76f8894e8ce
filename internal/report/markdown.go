// Package report renders exported metadata for people: a markdown summary,
// its HTML rendering and console tables.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/models"
)

// testEntry pairs a test document with its identity.
type testEntry struct {
	id   string
	test models.TestDoc
}

// sortedTests orders tests by node id, then identity.
func sortedTests(doc *models.Document) []testEntry {
	entries := make([]testEntry, 0, len(doc.Tests))
	for id, t := range doc.Tests {
		entries = append(entries, testEntry{id: id, test: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].test.NodeID != entries[j].test.NodeID {
			return entries[i].test.NodeID < entries[j].test.NodeID
		}
		return entries[i].id < entries[j].id
	})
	return entries
}

// Outcome summarizes the runs of a test: the worst run status, with
// error > failed > passed > skipped.
func Outcome(t models.TestDoc) string {
	rank := map[string]int{
		models.StatusSkipped: 1,
		models.StatusPassed:  2,
		models.StatusFailed:  3,
		models.StatusError:   4,
	}
	worst := ""
	for _, r := range t.Runs {
		if rank[r.Status] > rank[worst] {
			worst = r.Status
		}
	}
	return worst
}

// BuildMarkdown renders a session summary, a per-test table and the failure
// details of every failed or errored run.
func BuildMarkdown(doc *models.Document) string {
	var b strings.Builder
	s := doc.Session

	fmt.Fprintf(&b, "# Test session %s\n\n", s.RunID)
	if s.StartTime != nil {
		fmt.Fprintf(&b, "Started %s, ran for %s, exit status %d.\n\n",
			epochTime(*s.StartTime).Format(time.RFC3339), seconds(s.Duration), s.ExitStatus)
	}

	b.WriteString("| Collected | Passed | Failed | Skipped | Errors |\n")
	b.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		s.TotalTests, s.TotalPassed, s.TotalFailed, s.TotalSkipped, s.TotalErrors)

	entries := sortedTests(doc)
	if len(entries) > 0 {
		b.WriteString("## Tests\n\n")
		b.WriteString("| Test | Runs | Outcome | Duration |\n")
		b.WriteString("|---|---:|---|---:|\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "| `%s` | %d | %s | %s |\n",
				e.test.NodeID, len(e.test.Runs), Outcome(e.test), seconds(e.test.Duration))
		}
		b.WriteString("\n")
	}

	var failures strings.Builder
	for _, e := range entries {
		for i, r := range e.test.Runs {
			if r.Status != models.StatusFailed && r.Status != models.StatusError {
				continue
			}
			fmt.Fprintf(&failures, "### %s (run %d, %s)\n\n", e.test.NodeID, i, r.Status)
			if len(r.Parameters) > 0 {
				fmt.Fprintf(&failures, "Parameters: `%s`\n\n", formatParams(r.Parameters))
			}
			for _, st := range []struct {
				name string
				doc  models.StageDoc
			}{{models.StageSetup, r.Setup}, {models.StageCall, r.Call}, {models.StageTeardown, r.Teardown}} {
				if !st.doc.Failed && !st.doc.Error {
					continue
				}
				fmt.Fprintf(&failures, "**%s**\n\n```\n%s\n```\n\n", st.name, strings.TrimRight(st.doc.Capture.Longrepr, "\n"))
			}
		}
	}
	if failures.Len() > 0 {
		b.WriteString("## Failures\n\n")
		b.WriteString(failures.String())
	}

	return b.String()
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}

func epochTime(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}

func seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second)).Round(time.Millisecond)
}
