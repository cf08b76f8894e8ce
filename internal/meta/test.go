package meta

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/models"
)

// OutcomeRecorder receives the classified outcome of every finished call stage.
// *Session implements it.
type OutcomeRecorder interface {
	RecordOutcome(outcome string)
}

// Test is the identity and lifecycle of one test definition across all of its
// parametrized runs. Stage transitions assume a single test executes at a time.
type Test struct {
	clock      Clock
	classifier *Classifier
	recorder   OutcomeRecorder

	id           string
	nodeID       string
	filename     string
	relPath      string
	absPath      string
	lineno       int
	testcase     string
	hierarchy    []string
	fixtureNames []string
	parameters   map[string]any

	currentStage string
	testIndex    int
	lastSeenID   string
	boundaryID   string

	startTime time.Time
	stopTime  time.Time
	stats     models.TestStats

	runs        []*models.TestRun
	currentRun  *models.TestRun
	stageResult *models.StageResult
}

// NewTest creates an uninitialized test entity. A nil classifier uses
// DefaultClassifier; a nil recorder discards outcomes.
func NewTest(clock Clock, classifier *Classifier, recorder OutcomeRecorder) *Test {
	if clock == nil {
		clock = time.Now
	}
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Test{
		clock:      clock,
		classifier: classifier,
		recorder:   recorder,
		lineno:     -1,
		parameters: make(map[string]any),
	}
}

// GenerateID returns the test identity: the hex SHA-1 of "relpath::testcase".
// Parametrized invocations of one definition share it.
func GenerateID(relPath, testcase string) string {
	sum := sha1.Sum([]byte(relPath + "::" + testcase))
	return hex.EncodeToString(sum[:])
}

// Initialize loads identity and context fields from an item. The start time is
// only set on the first call. When the test is initialized again, a negative
// line, an empty path and nil fixture names keep the values already known.
func (t *Test) Initialize(item models.Item) {
	again := t.id != ""
	t.nodeID = item.NodeID
	t.relPath = item.RelPath
	t.testcase = item.Name
	t.hierarchy = splitPath(item.RelPath)

	if item.Line >= 0 || !again {
		t.lineno = item.Line
	}

	switch {
	case item.Path != "":
		t.filename = filepath.Base(item.Path)
		t.absPath = filepath.Dir(item.Path)
	case !again:
		t.filename = filepath.Base(item.RelPath)
		t.absPath = filepath.Dir(item.RelPath)
	}

	if item.FixtureNames != nil || !again {
		t.fixtureNames = append([]string{}, item.FixtureNames...)
	}
	t.parameters = make(map[string]any, len(item.Parameters))
	for k, v := range item.Parameters {
		t.parameters[k] = v
	}

	t.id = GenerateID(t.relPath, t.testcase)
	t.lastSeenID = t.id

	if t.startTime.IsZero() {
		t.startTime = t.clock()
	}
}

// splitPath breaks a path into its components. A leading separator is kept
// as the first element.
func splitPath(path string) []string {
	if path == "" {
		return []string{}
	}
	path = filepath.ToSlash(path)

	var parts []string
	if strings.HasPrefix(path, "/") {
		parts = append(parts, "/")
	}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// StartNewRun appends a fresh run bound to the current parameters.
func (t *Test) StartNewRun() {
	t.currentRun = models.NewTestRun(t.parameters)
	t.runs = append(t.runs, t.currentRun)
	t.stats.TotalRuns++
}

// StartStage enters a stage. A setup stage seen again for the identity
// recorded at the previous setup starts the next run.
func (t *Test) StartStage(name string) {
	switch {
	case t.currentRun == nil:
		t.StartNewRun()
	case name == models.StageSetup && t.boundaryID == t.id:
		t.testIndex++
		t.StartNewRun()
	}
	if name == models.StageSetup {
		t.boundaryID = t.lastSeenID
	}

	t.currentStage = name
	t.stageResult = &models.StageResult{StartTime: t.clock()}

	if t.currentRun.StartTime.IsZero() {
		t.currentRun.StartTime = t.stageResult.StartTime
	}
}

// FinishStage records a stage report into the current run and returns the
// finalized stage result. Without an active stage it does nothing and
// returns false, so duplicate reports are ignored.
func (t *Test) FinishStage(report models.Report) (models.StageResult, bool) {
	if t.stageResult == nil || t.currentRun == nil {
		return models.StageResult{}, false
	}

	result := t.stageResult
	result.Status = report.Outcome
	if !report.Start.IsZero() {
		result.StartTime = report.Start
	}
	result.StopTime = report.Stop
	if result.StopTime.IsZero() {
		result.StopTime = t.clock()
	}
	result.Duration = report.Duration
	result.Passed = report.Passed()
	result.Failed = report.Failed()
	result.Skipped = report.Skipped()
	result.Error = t.classifier.IsError(t.currentStage, result.Failed, report.Longrepr)
	result.Capture = models.StageCapture{
		Stdout:   report.Stdout,
		Stderr:   report.Stderr,
		Log:      report.Log,
		Longrepr: report.Longrepr,
	}

	slot := t.currentRun.Stage(t.currentStage)
	if slot == nil {
		t.stageResult = nil
		return *result, false
	}
	*slot = *result

	run := t.currentRun
	run.Status = run.ResolveStatus()
	run.StopTime = t.clock()
	run.Duration = run.StopTime.Sub(run.StartTime)

	if t.currentStage == models.StageCall {
		outcome := Outcome(*result)
		t.recordOutcome(outcome)
		if t.recorder != nil {
			t.recorder.RecordOutcome(outcome)
		}
	}

	t.stageResult = nil
	return *result, true
}

func (t *Test) recordOutcome(outcome string) {
	switch outcome {
	case models.StatusPassed:
		t.stats.TotalPassed++
	case models.StatusFailed:
		t.stats.TotalFailed++
	case models.StatusSkipped:
		t.stats.TotalSkipped++
	default:
		t.stats.TotalErrors++
	}
}

// Finish stamps the stop time of the test across all of its runs.
func (t *Test) Finish() {
	t.stopTime = t.clock()
}

// Duration is zero before initialization and live until Finish is called.
func (t *Test) Duration() time.Duration {
	if t.startTime.IsZero() {
		return 0
	}
	end := t.stopTime
	if end.IsZero() {
		end = t.clock()
	}
	if d := end.Sub(t.startTime); d > 0 {
		return d
	}
	return 0
}

func (t *Test) ID() string                  { return t.id }
func (t *Test) NodeID() string              { return t.nodeID }
func (t *Test) Filename() string            { return t.filename }
func (t *Test) Testcase() string            { return t.testcase }
func (t *Test) RelPath() string             { return t.relPath }
func (t *Test) AbsPath() string             { return t.absPath }
func (t *Test) Lineno() int                 { return t.lineno }
func (t *Test) CurrentStage() string        { return t.currentStage }
func (t *Test) TestIndex() int              { return t.testIndex }
func (t *Test) Stats() models.TestStats     { return t.stats }
func (t *Test) StartTime() time.Time        { return t.startTime }
func (t *Test) StopTime() time.Time         { return t.stopTime }
func (t *Test) CurrentRun() *models.TestRun { return t.currentRun }

// Hierarchy returns a copy of the path components of the test file.
func (t *Test) Hierarchy() []string {
	return append([]string{}, t.hierarchy...)
}

// FixtureNames returns a copy of the fixtures requested by the test.
func (t *Test) FixtureNames() []string {
	return append([]string{}, t.fixtureNames...)
}

// Parameters returns a copy of the most recent parameter set.
func (t *Test) Parameters() map[string]any {
	out := make(map[string]any, len(t.parameters))
	for k, v := range t.parameters {
		out[k] = v
	}
	return out
}

// Runs returns a snapshot of every run in execution order.
func (t *Test) Runs() []models.TestRun {
	out := make([]models.TestRun, len(t.runs))
	for i, r := range t.runs {
		out[i] = *r
	}
	return out
}

// HasStatus reports whether any run of the test resolved to status.
func (t *Test) HasStatus(status string) bool {
	for _, r := range t.runs {
		if r.Status == status {
			return true
		}
	}
	return false
}
