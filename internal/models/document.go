package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the typed view of an exported metadata file. Custom route data
// is not represented here; it is only available through the raw tree.
type Document struct {
	Session SessionDoc         `json:"session"`
	Tests   map[string]TestDoc `json:"tests"`
}

// SessionDoc mirrors the "session" object of an export.
type SessionDoc struct {
	RunID          string         `json:"run_id"`
	InvocationArgs map[string]any `json:"invocation_args"`
	StartTime      *float64       `json:"start_time"`
	StopTime       *float64       `json:"stop_time"`
	Duration       float64        `json:"duration"`
	TotalTests     int            `json:"total_tests"`
	TotalPassed    int            `json:"total_passed"`
	TotalFailed    int            `json:"total_failed"`
	TotalSkipped   int            `json:"total_skipped"`
	TotalErrors    int            `json:"total_errors"`
	ExitStatus     int            `json:"exitstatus"`
}

// TestDoc mirrors one entry of the "tests" object of an export.
type TestDoc struct {
	NodeID       string   `json:"nodeid"`
	RelPath      string   `json:"relpath"`
	AbsPath      string   `json:"abspath"`
	Hierarchy    []string `json:"hierarchy"`
	Filename     string   `json:"filename"`
	Testcase     string   `json:"testcase"`
	Lineno       int      `json:"lineno"`
	FixtureNames []string `json:"fixture_names"`
	StartTime    *float64 `json:"start_time"`
	StopTime     *float64 `json:"stop_time"`
	Duration     float64  `json:"duration"`
	TotalRuns    int      `json:"total_runs"`
	TotalPassed  int      `json:"total_passed"`
	TotalFailed  int      `json:"total_failed"`
	TotalSkipped int      `json:"total_skipped"`
	TotalErrors  int      `json:"total_errors"`
	Runs         []RunDoc `json:"runs"`
}

// RunDoc mirrors one element of a test's "runs" list.
type RunDoc struct {
	Parameters map[string]any `json:"parameters"`
	Status     string         `json:"status"`
	StartTime  *float64       `json:"start_time"`
	StopTime   *float64       `json:"stop_time"`
	Duration   float64        `json:"duration"`
	Setup      StageDoc       `json:"setup"`
	Call       StageDoc       `json:"call"`
	Teardown   StageDoc       `json:"teardown"`
}

// StageDoc mirrors a setup/call/teardown object of a run.
type StageDoc struct {
	Status    string     `json:"status"`
	StartTime *float64   `json:"start_time"`
	StopTime  *float64   `json:"stop_time"`
	Duration  float64    `json:"duration"`
	Passed    bool       `json:"passed"`
	Failed    bool       `json:"failed"`
	Skipped   bool       `json:"skipped"`
	Error     bool       `json:"error"`
	Capture   CaptureDoc `json:"capture"`
}

// CaptureDoc mirrors the capture object of a stage.
type CaptureDoc struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Log      string `json:"log"`
	Longrepr string `json:"longrepr"`
}

// DecodeDocument parses an exported JSON metadata document.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata document: %w", err)
	}
	if doc.Tests == nil {
		doc.Tests = make(map[string]TestDoc)
	}
	return &doc, nil
}

// LoadDocument reads and parses an exported JSON metadata file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	return DecodeDocument(data)
}
