package models

import "time"

// Item describes one collected test item as handed over by the host framework.
// Parametrized invocations of one test definition share RelPath and Name and
// differ in NodeID and Parameters.
type Item struct {
	NodeID       string         // Framework node id, e.g. "tests/test_a.py::test_x[1-2]"
	Path         string         // Absolute path of the file defining the test
	RelPath      string         // Path relative to the invocation root
	Line         int            // Line number of the test definition
	Name         string         // Declared test name without parameter suffix
	FixtureNames []string       // Fixtures requested by the test
	Parameters   map[string]any // Parameter set of this invocation (may be nil)
}

// Report is the outcome of one stage as delivered by the host framework.
type Report struct {
	NodeID   string
	When     string // Stage name: setup, call or teardown
	Outcome  string // passed, failed or skipped
	Start    time.Time
	Stop     time.Time
	Duration time.Duration
	Longrepr string // Failure representation; empty when absent
	Stdout   string
	Stderr   string
	Log      string
}

// Passed reports whether the stage outcome is passed.
func (r Report) Passed() bool { return r.Outcome == StatusPassed }

// Failed reports whether the stage outcome is failed.
func (r Report) Failed() bool { return r.Outcome == StatusFailed }

// Skipped reports whether the stage outcome is skipped.
func (r Report) Skipped() bool { return r.Outcome == StatusSkipped }
