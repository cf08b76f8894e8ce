package hooks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harrison/testmeta/internal/collector"
	"github.com/harrison/testmeta/internal/models"
	"github.com/harrison/testmeta/internal/routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `
{"event":"configure","args":["-v","tests"]}
{"event":"register","name":"tag","route":"{id}.tags","array":true}
{"event":"session_start"}
{"event":"collection_finish","count":1}
{"event":"runtest_protocol","item":{"nodeid":"tests/test_a.py::test_a","path":"/work/tests/test_a.py","relpath":"tests/test_a.py","lineno":4,"name":"test_a"}}
{"event":"setup","item":{"nodeid":"tests/test_a.py::test_a","relpath":"tests/test_a.py","name":"test_a"}}
{"event":"report","report":{"nodeid":"tests/test_a.py::test_a","when":"setup","outcome":"passed","start":1709294400,"stop":1709294400.5,"duration":0.5}}
{"event":"call","item":{"nodeid":"tests/test_a.py::test_a","relpath":"tests/test_a.py","name":"test_a"}}
{"event":"custom","name":"tag","data":"slow"}

{"event":"report","report":{"nodeid":"tests/test_a.py::test_a","when":"call","outcome":"failed","duration":0.25,"longrepr":"E   AssertionError: nope","stdout":"hello"}}
{"event":"teardown","item":{"nodeid":"tests/test_a.py::test_a","relpath":"tests/test_a.py","name":"test_a"}}
{"event":"report","report":{"nodeid":"tests/test_a.py::test_a","when":"teardown","outcome":"passed"}}
{"event":"set","route":"session.ci","value":{"job":42}}
{"event":"session_finish","exitstatus":1}
`

func TestReplay(t *testing.T) {
	c := collector.New()

	n, err := Replay(context.Background(), strings.NewReader(sampleStream), c)
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	assert.Equal(t, 1, c.TotalTests())
	assert.Equal(t, 1, c.TotalFailed())
	assert.Equal(t, 1, c.ExitStatus())
	assert.True(t, c.Session().HasFinished())
	assert.Equal(t, map[string]any{"-v": "tests"}, c.Session().InvocationArgs())

	tests := c.Tests()
	require.Len(t, tests, 1)
	tt := tests[0]
	assert.Equal(t, "test_a.py", tt.Filename())
	assert.Equal(t, "/work/tests", tt.AbsPath())
	assert.Equal(t, 4, tt.Lineno())
	runs := tt.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatusFailed, runs[0].Status)
	assert.Equal(t, "hello", runs[0].Call.Capture.Stdout)
	assert.Equal(t, 250*time.Millisecond, runs[0].Call.Duration)
	assert.Equal(t, time.Unix(1709294400, 0).UTC(), runs[0].Setup.StartTime)
	assert.Equal(t, time.Unix(1709294400, 500000000).UTC(), runs[0].Setup.StopTime)

	root := c.ToNode()
	tags, ok := root.Lookup("tests", tt.ID(), "tags")
	require.True(t, ok)
	assert.Equal(t, []any{"slow"}, tags.Interface())
	job, ok := root.Lookup("session", "ci", "job")
	require.True(t, ok)
	assert.Equal(t, float64(42), job.Value())
}

func TestReplay_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		applied int
		wantErr error
		line    string
	}{
		{
			name:    "unknown event",
			stream:  "{\"event\":\"session_start\"}\n{\"event\":\"explode\"}\n",
			applied: 1,
			wantErr: ErrUnknownEvent,
			line:    "line 2",
		},
		{
			name:    "missing item",
			stream:  "{\"event\":\"setup\"}\n",
			wantErr: ErrMissingField,
			line:    "line 1",
		},
		{
			name:    "missing report",
			stream:  "\n\n{\"event\":\"report\"}\n",
			wantErr: ErrMissingField,
			line:    "line 3",
		},
		{
			name:    "missing event name",
			stream:  "{\"count\":3}\n",
			wantErr: ErrMissingField,
			line:    "line 1",
		},
		{
			name:    "empty resolved route",
			stream:  "{\"event\":\"set\",\"route\":\"{nodeid}\",\"value\":1}\n",
			wantErr: routes.ErrEmptyPath,
			line:    "line 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Replay(context.Background(), strings.NewReader(tt.stream), collector.New())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Contains(t, err.Error(), tt.line)
			assert.Equal(t, tt.applied, n)
		})
	}
}

func TestReplay_Malformed(t *testing.T) {
	_, err := Replay(context.Background(), strings.NewReader("{not json}\n"), collector.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1: failed to decode event")
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Replay(ctx, strings.NewReader(sampleStream), collector.New())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestWriter_RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	line := 9
	it := &Item{NodeID: "pkg::TestX", RelPath: "pkg", Name: "TestX", Lineno: &line}

	for _, ev := range []Event{
		{Event: EventSessionStart},
		{Event: EventCollectionFinish, Count: 1},
		{Event: EventRuntestProtocol, Item: it},
		{Event: EventSetup, Item: it},
		{Event: EventReport, Report: &Report{When: models.StageSetup, Outcome: models.StatusPassed}},
		{Event: EventCall, Item: it},
		{Event: EventReport, Report: &Report{When: models.StageCall, Outcome: models.StatusSkipped}},
		{Event: EventTeardown, Item: it},
		{Event: EventReport, Report: &Report{When: models.StageTeardown, Outcome: models.StatusPassed}},
		{Event: EventSessionFinish},
	} {
		require.NoError(t, w.Write(ev))
	}
	assert.Equal(t, 10, strings.Count(buf.String(), "\n"))

	c := collector.New()
	n, err := Replay(context.Background(), buf, c)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 1, c.TotalSkipped())
	require.Len(t, c.SkippedTests(), 1)
	assert.Equal(t, 9, c.Tests()[0].Lineno())
}

func TestItem_MissingLineno(t *testing.T) {
	it := Item{NodeID: "a::b", RelPath: "a", Name: "b"}
	assert.Equal(t, -1, it.Model().Line)
}

func TestEpoch(t *testing.T) {
	assert.True(t, FromEpoch(0).IsZero())
	assert.Equal(t, float64(0), ToEpoch(time.Time{}))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 250000000, time.UTC)
	assert.InDelta(t, 1709294400.25, ToEpoch(ts), 1e-6)
	assert.WithinDuration(t, ts, FromEpoch(ToEpoch(ts)), time.Microsecond)
}
