// Package gotest converts the output of `go test -json` into lifecycle
// events. Each leaf test becomes one run: a setup report when it starts, a
// call report carrying its outcome and output, and a teardown report when it
// ends. Subtests are runs of their top-level test, told apart by the
// "subtest" parameter.
package gotest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/collector"
	"github.com/harrison/testmeta/internal/hooks"
	"github.com/harrison/testmeta/internal/models"
)

// test2json actions
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// ExitNoTests is the exit status reported when no test ran.
const ExitNoTests = 5

const maxLineSize = 10 * 1024 * 1024

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

type testKey struct {
	pkg  string
	name string
}

// testState accumulates the events of one test.
type testState struct {
	key     testKey
	start   time.Time
	end     time.Time
	action  string
	elapsed float64
	output  []string
}

// Convert reads a `go test -json` stream and returns the lifecycle events of
// the run, framed by configure/session_start and session_finish. Lines that
// are not test2json events are skipped.
func Convert(r io.Reader, args []string) ([]hooks.Event, error) {
	states := make(map[testKey]*testState)
	var order []testKey
	failedPackages := 0

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev TestEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}

		if ev.Test == "" {
			if ev.Action == ActionFail {
				failedPackages++
			}
			continue
		}

		key := testKey{pkg: ev.Package, name: ev.Test}
		st, ok := states[key]
		if !ok {
			st = &testState{key: key}
			states[key] = st
			order = append(order, key)
		}
		st.apply(ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read go test output: %w", err)
	}

	leaves := leafTests(order)

	evs := []hooks.Event{
		{Event: hooks.EventConfigure, Args: args},
		{Event: hooks.EventSessionStart},
		{Event: hooks.EventCollectionFinish, Count: len(leaves)},
	}

	failed := failedPackages > 0
	for i, key := range leaves {
		st := states[key]
		var next *hooks.Item
		if i+1 < len(leaves) {
			n := item(leaves[i+1])
			next = &n
		}
		evs = append(evs, st.events(item(key), next)...)
		if st.outcome() == models.StatusFailed {
			failed = true
		}
	}

	exit := 0
	switch {
	case failed:
		exit = 1
	case len(leaves) == 0:
		exit = ExitNoTests
	}
	evs = append(evs, hooks.Event{Event: hooks.EventSessionFinish, ExitStatus: exit})
	return evs, nil
}

func (st *testState) apply(ev TestEvent) {
	switch ev.Action {
	case ActionStart, ActionRun:
		if st.start.IsZero() {
			st.start = ev.Time
		}
	case ActionPass, ActionFail, ActionSkip:
		st.action = ev.Action
		st.end = ev.Time
		st.elapsed = ev.Elapsed
	case ActionOutput:
		st.output = append(st.output, strings.TrimRight(ev.Output, "\n"))
	}
}

// outcome maps the terminal action. A test that never ended counts as failed.
func (st *testState) outcome() string {
	switch st.action {
	case ActionPass:
		return models.StatusPassed
	case ActionSkip:
		return models.StatusSkipped
	default:
		return models.StatusFailed
	}
}

// leafTests keeps the tests that have no subtests, in first-seen order.
func leafTests(order []testKey) []testKey {
	parents := make(map[testKey]bool)
	for _, key := range order {
		name := key.name
		for {
			i := strings.LastIndex(name, "/")
			if i < 0 {
				break
			}
			name = name[:i]
			parents[testKey{pkg: key.pkg, name: name}] = true
		}
	}

	var leaves []testKey
	for _, key := range order {
		if !parents[key] {
			leaves = append(leaves, key)
		}
	}
	return leaves
}

// item describes a leaf test. Its identity is the package and the top-level
// test name; the subtest path is a parameter.
func item(key testKey) hooks.Item {
	top, sub, _ := strings.Cut(key.name, "/")
	it := hooks.Item{
		NodeID:  key.pkg + "::" + key.name,
		Path:    key.pkg,
		RelPath: key.pkg,
		Name:    top,
	}
	if sub != "" {
		it.Parameters = map[string]any{"subtest": sub}
	}
	return it
}

func (st *testState) events(it hooks.Item, next *hooks.Item) []hooks.Event {
	start := hooks.ToEpoch(st.start)
	end := hooks.ToEpoch(st.end)
	if end == 0 {
		end = start
	}
	duration := st.elapsed
	if duration == 0 && !st.start.IsZero() && !st.end.IsZero() {
		duration = st.end.Sub(st.start).Seconds()
	}

	outcome := st.outcome()
	output := st.visibleOutput()
	call := &hooks.Report{
		NodeID:   it.NodeID,
		When:     models.StageCall,
		Outcome:  outcome,
		Start:    start,
		Stop:     end,
		Duration: duration,
		Stdout:   output,
	}
	switch outcome {
	case models.StatusFailed:
		call.Longrepr = failureText(st.output)
		if st.action == "" {
			call.Longrepr = strings.TrimSpace(call.Longrepr + "\ntest did not finish")
		}
	case models.StatusSkipped:
		call.Longrepr = output
	}

	itemRef := &it
	return []hooks.Event{
		{Event: hooks.EventRuntestProtocol, Item: itemRef, Next: next},
		{Event: hooks.EventSetup, Item: itemRef},
		{Event: hooks.EventReport, Report: &hooks.Report{NodeID: it.NodeID, When: models.StageSetup, Outcome: models.StatusPassed, Start: start, Stop: start}},
		{Event: hooks.EventCall, Item: itemRef},
		{Event: hooks.EventReport, Report: call},
		{Event: hooks.EventTeardown, Item: itemRef},
		{Event: hooks.EventReport, Report: &hooks.Report{NodeID: it.NodeID, When: models.StageTeardown, Outcome: models.StatusPassed, Start: end, Stop: end}},
	}
}

// visibleOutput drops the framing lines test2json reports for every test.
func (st *testState) visibleOutput() string {
	var lines []string
	for _, l := range st.output {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "=== RUN") || strings.HasPrefix(trimmed, "=== PAUSE") ||
			strings.HasPrefix(trimmed, "=== CONT") || strings.HasPrefix(trimmed, "=== NAME") {
			continue
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

// failureText is the output up to and including the last "--- FAIL" or
// "panic:" line, so the failure marker is the final line.
func failureText(output []string) string {
	last := -1
	for i, l := range output {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "--- FAIL") || strings.HasPrefix(trimmed, "panic:") {
			last = i
		}
	}
	if last < 0 {
		return strings.Join(output, "\n")
	}

	var lines []string
	for _, l := range output[:last+1] {
		if strings.HasPrefix(strings.TrimSpace(l), "=== ") {
			continue
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

// Drive applies converted events to c in order.
func Drive(c *collector.Collector, evs []hooks.Event) error {
	for i, ev := range evs {
		if err := hooks.Apply(c, ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.Event, err)
		}
	}
	return nil
}
