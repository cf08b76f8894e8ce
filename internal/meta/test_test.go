package meta

import (
	"testing"
	"time"

	"github.com/harrison/testmeta/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeLog []string

func (o *outcomeLog) RecordOutcome(outcome string) { *o = append(*o, outcome) }

func item(relPath, name string, params map[string]any) models.Item {
	return models.Item{
		NodeID:       relPath + "::" + name,
		Path:         "/work/" + relPath,
		RelPath:      relPath,
		Line:         12,
		Name:         name,
		FixtureNames: []string{"tmp_path"},
		Parameters:   params,
	}
}

func report(stage, outcome, longrepr string) models.Report {
	return models.Report{When: stage, Outcome: outcome, Longrepr: longrepr, Duration: 10 * time.Millisecond}
}

// runCycle drives one setup/call/teardown cycle through the entity.
func runCycle(tt *Test, callOutcome, longrepr string) {
	for _, stage := range models.Stages {
		tt.StartStage(stage)
		if stage == models.StageCall {
			tt.FinishStage(report(stage, callOutcome, longrepr))
			continue
		}
		tt.FinishStage(report(stage, models.StatusPassed, ""))
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("tests/test_a.py", "test_one")
	assert.Equal(t, "5d0b05b514b9513c865440d9bc671eb33b45ac38", id)
	assert.Equal(t, id, GenerateID("tests/test_a.py", "test_one"))
	assert.NotEqual(t, id, GenerateID("tests/test_a.py", "test_two"))
	assert.NotEqual(t, id, GenerateID("tests/test_b.py", "test_one"))
}

func TestTest_Initialize(t *testing.T) {
	clock := newFakeClock()
	tt := NewTest(clock.Now, nil, nil)

	tt.Initialize(item("tests/unit/test_a.py", "test_x", map[string]any{"n": 1}))

	assert.Equal(t, GenerateID("tests/unit/test_a.py", "test_x"), tt.ID())
	assert.Equal(t, "tests/unit/test_a.py::test_x", tt.NodeID())
	assert.Equal(t, "test_a.py", tt.Filename())
	assert.Equal(t, "/work/tests/unit", tt.AbsPath())
	assert.Equal(t, "tests/unit/test_a.py", tt.RelPath())
	assert.Equal(t, 12, tt.Lineno())
	assert.Equal(t, "test_x", tt.Testcase())
	assert.Equal(t, []string{"tests", "unit", "test_a.py"}, tt.Hierarchy())
	assert.Equal(t, []string{"tmp_path"}, tt.FixtureNames())
	assert.Equal(t, map[string]any{"n": 1}, tt.Parameters())

	start := tt.StartTime()
	clock.Advance(time.Second)
	tt.Initialize(item("tests/unit/test_a.py", "test_x", nil))
	assert.Equal(t, start, tt.StartTime(), "start time is only set once")
	assert.Equal(t, map[string]any{}, tt.Parameters(), "missing parameters become empty")
}

func TestTest_InitializeSparseItem(t *testing.T) {
	tt := NewTest(nil, nil, nil)
	tt.Initialize(item("tests/unit/test_a.py", "test_x", nil))

	tt.Initialize(models.Item{
		NodeID:  "tests/unit/test_a.py::test_x",
		RelPath: "tests/unit/test_a.py",
		Line:    -1,
		Name:    "test_x",
	})

	assert.Equal(t, 12, tt.Lineno())
	assert.Equal(t, "/work/tests/unit", tt.AbsPath())
	assert.Equal(t, "test_a.py", tt.Filename())
	assert.Equal(t, []string{"tmp_path"}, tt.FixtureNames())

	tt.Initialize(models.Item{
		NodeID:       "tests/unit/test_a.py::test_x",
		Path:         "/other/tests/unit/test_a.py",
		RelPath:      "tests/unit/test_a.py",
		Line:         20,
		Name:         "test_x",
		FixtureNames: []string{},
	})

	assert.Equal(t, 20, tt.Lineno())
	assert.Equal(t, "/other/tests/unit", tt.AbsPath())
	assert.Empty(t, tt.FixtureNames())
}

func TestTest_InitializeWithoutPathOrLine(t *testing.T) {
	tt := NewTest(nil, nil, nil)
	tt.Initialize(models.Item{NodeID: "tests/test_a.py::test_x", RelPath: "tests/test_a.py", Line: -1, Name: "test_x"})

	assert.Equal(t, -1, tt.Lineno())
	assert.Equal(t, "test_a.py", tt.Filename())
	assert.Equal(t, "tests", tt.AbsPath())
	assert.Equal(t, []string{}, tt.FixtureNames())
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{}, splitPath(""))
	assert.Equal(t, []string{"test_a.py"}, splitPath("test_a.py"))
	assert.Equal(t, []string{"/", "abs", "test_a.py"}, splitPath("/abs/test_a.py"))
	assert.Equal(t, []string{"a", "b", "c.py"}, splitPath("a//b/c.py"))
}

func TestTest_SingleRun(t *testing.T) {
	var outcomes outcomeLog
	tt := NewTest(newFakeClock().Now, nil, &outcomes)
	tt.Initialize(item("tests/test_a.py", "test_one", nil))

	runCycle(tt, models.StatusPassed, "")
	tt.Finish()

	runs := tt.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatusPassed, runs[0].Status)
	for _, stage := range models.Stages {
		assert.True(t, runs[0].Stage(stage).Populated(), stage)
	}
	assert.Equal(t, models.TestStats{TotalRuns: 1, TotalPassed: 1}, tt.Stats())
	assert.Equal(t, outcomeLog{models.StatusPassed}, outcomes)
	assert.Equal(t, 0, tt.TestIndex())
	assert.Equal(t, models.StageTeardown, tt.CurrentStage())
}

func TestTest_ParametrizedRuns(t *testing.T) {
	var outcomes outcomeLog
	tt := NewTest(newFakeClock().Now, nil, &outcomes)

	tt.Initialize(item("tests/test_b.py", "test_param", map[string]any{"x": 1}))
	runCycle(tt, models.StatusFailed, "E  assert 1 == 2\nAssertionError: assert 1 == 2")

	tt.Initialize(item("tests/test_b.py", "test_param", map[string]any{"x": 2}))
	runCycle(tt, models.StatusPassed, "")

	runs := tt.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, models.StatusFailed, runs[0].Status)
	assert.Equal(t, map[string]any{"x": 1}, runs[0].Parameters)
	assert.Equal(t, models.StatusPassed, runs[1].Status)
	assert.Equal(t, map[string]any{"x": 2}, runs[1].Parameters)

	assert.Equal(t, 1, tt.TestIndex())
	assert.Equal(t, models.TestStats{TotalRuns: 2, TotalPassed: 1, TotalFailed: 1}, tt.Stats())
	assert.Equal(t, outcomeLog{models.StatusFailed, models.StatusPassed}, outcomes)
}

func TestTest_CallErrorClassification(t *testing.T) {
	var outcomes outcomeLog
	tt := NewTest(newFakeClock().Now, nil, &outcomes)
	tt.Initialize(item("tests/test_c.py", "test_err", nil))

	runCycle(tt, models.StatusFailed, "NameError: name 'x' is not defined")

	run := tt.Runs()[0]
	assert.Equal(t, models.StatusError, run.Status)
	assert.True(t, run.Call.Error)
	assert.True(t, run.Call.Failed)
	assert.Equal(t, models.TestStats{TotalRuns: 1, TotalErrors: 1}, tt.Stats())
	assert.Equal(t, outcomeLog{models.StatusError}, outcomes)
}

func TestTest_SetupFailureIsError(t *testing.T) {
	tt := NewTest(newFakeClock().Now, nil, nil)
	tt.Initialize(item("tests/test_d.py", "test_fixture", nil))

	tt.StartStage(models.StageSetup)
	_, ok := tt.FinishStage(report(models.StageSetup, models.StatusFailed, "fixture 'db' not found"))
	require.True(t, ok)

	run := tt.CurrentRun()
	assert.True(t, run.Setup.Error)
	assert.Equal(t, models.StatusError, run.Status, "status resolves from populated slots only")
	assert.False(t, run.Call.Populated())
}

func TestTest_StatusResolvedFromPopulatedSlots(t *testing.T) {
	tt := NewTest(newFakeClock().Now, nil, nil)
	tt.Initialize(item("tests/test_e.py", "test_skip", nil))

	tt.StartStage(models.StageSetup)
	tt.FinishStage(report(models.StageSetup, models.StatusSkipped, "skipped: no db"))

	assert.Equal(t, models.StatusSkipped, tt.CurrentRun().Status)
}

func TestTest_FinishStageWithoutStage(t *testing.T) {
	var outcomes outcomeLog
	tt := NewTest(newFakeClock().Now, nil, &outcomes)
	tt.Initialize(item("tests/test_f.py", "test_dup", nil))

	_, ok := tt.FinishStage(report(models.StageCall, models.StatusPassed, ""))
	assert.False(t, ok, "no active run")

	tt.StartStage(models.StageCall)
	_, ok = tt.FinishStage(report(models.StageCall, models.StatusPassed, ""))
	assert.True(t, ok)
	_, ok = tt.FinishStage(report(models.StageCall, models.StatusPassed, ""))
	assert.False(t, ok, "duplicate report is ignored")

	assert.Equal(t, 1, tt.Stats().TotalPassed)
	assert.Len(t, outcomes, 1)
}

func TestTest_Timings(t *testing.T) {
	clock := newFakeClock()
	tt := NewTest(clock.Now, nil, nil)
	tt.Initialize(item("tests/test_g.py", "test_time", nil))

	tt.StartStage(models.StageSetup)
	runStart := clock.Now()
	clock.Advance(time.Second)
	tt.FinishStage(report(models.StageSetup, models.StatusPassed, ""))

	tt.StartStage(models.StageCall)
	clock.Advance(2 * time.Second)
	res, _ := tt.FinishStage(report(models.StageCall, models.StatusPassed, ""))

	run := tt.CurrentRun()
	assert.Equal(t, runStart, run.StartTime, "run start is stamped by its first stage")
	assert.Equal(t, 3*time.Second, run.Duration)
	assert.Equal(t, clock.Now(), res.StopTime, "missing report stop falls back to the clock")
	assert.Equal(t, 10*time.Millisecond, res.Duration)

	assert.Equal(t, 3*time.Second, tt.Duration(), "live until finished")
	tt.Finish()
	clock.Advance(time.Hour)
	assert.Equal(t, 3*time.Second, tt.Duration())
}

func TestTest_HasStatus(t *testing.T) {
	tt := NewTest(nil, nil, nil)
	tt.Initialize(item("tests/test_h.py", "test_mixed", nil))
	runCycle(tt, models.StatusFailed, "AssertionError: x")
	runCycle(tt, models.StatusPassed, "")

	assert.True(t, tt.HasStatus(models.StatusFailed))
	assert.True(t, tt.HasStatus(models.StatusPassed))
	assert.False(t, tt.HasStatus(models.StatusSkipped))
}
