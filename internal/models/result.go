package models

import "time"

// Stage names, in execution order
const (
	StageSetup    = "setup"
	StageCall     = "call"
	StageTeardown = "teardown"
)

// Stages lists every stage of a run in execution order.
var Stages = []string{StageSetup, StageCall, StageTeardown}

// Stage and run status constants
const (
	StatusPassed  = "passed"  // Stage or run completed successfully
	StatusFailed  = "failed"  // Assertion failure inside the test body
	StatusSkipped = "skipped" // Stage or run was skipped
	StatusError   = "error"   // Environment-level failure (fixture, runtime error)
)

// StageCapture holds the text captured while a stage executed.
type StageCapture struct {
	Stdout   string
	Stderr   string
	Log      string
	Longrepr string // Failure representation (traceback) text
}

// StageResult records the outcome of one stage (setup, call or teardown).
// A zero StageResult is an unpopulated slot.
type StageResult struct {
	Status    string
	StartTime time.Time
	StopTime  time.Time
	Duration  time.Duration
	Passed    bool
	Failed    bool
	Skipped   bool
	Error     bool
	Capture   StageCapture
}

// Populated reports whether a report has been recorded into this stage.
func (s StageResult) Populated() bool {
	return s.Status != ""
}

// TestRun is one execution of a test with one parameter set.
type TestRun struct {
	Parameters map[string]any
	Status     string
	StartTime  time.Time
	StopTime   time.Time
	Duration   time.Duration

	Setup    StageResult
	Call     StageResult
	Teardown StageResult
}

// NewTestRun creates a run bound to a copy of the given parameters.
func NewTestRun(parameters map[string]any) *TestRun {
	params := make(map[string]any, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}
	return &TestRun{Parameters: params}
}

// Stage returns the result slot for the named stage, or nil for an unknown name.
func (r *TestRun) Stage(name string) *StageResult {
	switch name {
	case StageSetup:
		return &r.Setup
	case StageCall:
		return &r.Call
	case StageTeardown:
		return &r.Teardown
	default:
		return nil
	}
}

// ResolveStatus computes the overall run status from the populated stage slots.
// Priority: error > failed > skipped > passed. Unpopulated slots are ignored.
func (r *TestRun) ResolveStatus() string {
	var failed, skipped bool
	for _, name := range Stages {
		stage := r.Stage(name)
		if !stage.Populated() {
			continue
		}
		if stage.Error {
			return StatusError
		}
		failed = failed || stage.Failed
		skipped = skipped || stage.Skipped
	}
	switch {
	case failed:
		return StatusFailed
	case skipped:
		return StatusSkipped
	default:
		return StatusPassed
	}
}

// TestStats aggregates call-stage outcomes for a test across all of its runs.
type TestStats struct {
	TotalRuns    int
	TotalPassed  int
	TotalFailed  int
	TotalSkipped int
	TotalErrors  int
}

// SessionStats aggregates call-stage outcomes for the whole session.
type SessionStats struct {
	TotalTests   int // Number of collected items
	TotalPassed  int
	TotalFailed  int
	TotalSkipped int
	TotalErrors  int
}
