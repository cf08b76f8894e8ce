package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/filelock"
	"github.com/harrison/testmeta/internal/meta"
	"github.com/harrison/testmeta/internal/metrics"
	"github.com/harrison/testmeta/internal/models"
	"github.com/harrison/testmeta/internal/routes"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ToNode builds the export tree: the fixed session/tests schema with the
// custom metadata layered on top. Schema fields always win over custom ones.
func (c *Collector) ToNode() *routes.Node {
	root := routes.NewMap()
	root.Set("session", c.sessionNode())

	tests := routes.NewMap()
	for _, t := range c.Tests() {
		tests.Set(t.ID(), testNode(t))
	}
	root.Set("tests", tests)

	return root.Merge(c.resolver.Tree())
}

// ToMap returns the export tree as plain Go values.
func (c *Collector) ToMap() map[string]any {
	return c.ToNode().Interface().(map[string]any)
}

func (c *Collector) sessionNode() *routes.Node {
	s := c.session
	stats := s.Stats()

	n := routes.NewMap()
	n.Set("run_id", routes.NewScalar(s.RunID()))
	n.Set("invocation_args", routes.FromValue(s.InvocationArgs()))
	n.Set("start_time", epoch(s.StartTime()))
	n.Set("stop_time", epoch(s.StopTime()))
	n.Set("duration", seconds(s.Duration()))
	n.Set("total_tests", routes.NewScalar(stats.TotalTests))
	n.Set("total_passed", routes.NewScalar(stats.TotalPassed))
	n.Set("total_failed", routes.NewScalar(stats.TotalFailed))
	n.Set("total_skipped", routes.NewScalar(stats.TotalSkipped))
	n.Set("total_errors", routes.NewScalar(stats.TotalErrors))
	n.Set("exitstatus", routes.NewScalar(s.ExitStatus()))
	return n
}

func testNode(t *meta.Test) *routes.Node {
	stats := t.Stats()

	n := routes.NewMap()
	n.Set("nodeid", routes.NewScalar(t.NodeID()))
	n.Set("relpath", routes.NewScalar(t.RelPath()))
	n.Set("abspath", routes.NewScalar(t.AbsPath()))
	n.Set("hierarchy", routes.FromValue(t.Hierarchy()))
	n.Set("filename", routes.NewScalar(t.Filename()))
	n.Set("testcase", routes.NewScalar(t.Testcase()))
	n.Set("lineno", routes.NewScalar(t.Lineno()))
	n.Set("fixture_names", routes.FromValue(t.FixtureNames()))
	n.Set("start_time", epoch(t.StartTime()))
	n.Set("stop_time", epoch(t.StopTime()))
	n.Set("duration", seconds(t.Duration()))
	n.Set("total_runs", routes.NewScalar(stats.TotalRuns))
	n.Set("total_passed", routes.NewScalar(stats.TotalPassed))
	n.Set("total_failed", routes.NewScalar(stats.TotalFailed))
	n.Set("total_skipped", routes.NewScalar(stats.TotalSkipped))
	n.Set("total_errors", routes.NewScalar(stats.TotalErrors))

	runs := routes.NewList()
	for _, run := range t.Runs() {
		runs.Append(runNode(run))
	}
	n.Set("runs", runs)
	return n
}

func runNode(run models.TestRun) *routes.Node {
	n := routes.NewMap()
	n.Set("parameters", routes.FromValue(run.Parameters))
	n.Set("status", routes.NewScalar(run.Status))
	n.Set("start_time", epoch(run.StartTime))
	n.Set("stop_time", epoch(run.StopTime))
	n.Set("duration", seconds(run.Duration))
	for _, stage := range models.Stages {
		n.Set(stage, stageNode(*run.Stage(stage)))
	}
	return n
}

func stageNode(s models.StageResult) *routes.Node {
	capture := routes.NewMap()
	capture.Set("stdout", routes.NewScalar(s.Capture.Stdout))
	capture.Set("stderr", routes.NewScalar(s.Capture.Stderr))
	capture.Set("log", routes.NewScalar(s.Capture.Log))
	capture.Set("longrepr", routes.NewScalar(s.Capture.Longrepr))

	n := routes.NewMap()
	n.Set("status", routes.NewScalar(s.Status))
	n.Set("start_time", epoch(s.StartTime))
	n.Set("stop_time", epoch(s.StopTime))
	n.Set("duration", seconds(s.Duration))
	n.Set("passed", routes.NewScalar(s.Passed))
	n.Set("failed", routes.NewScalar(s.Failed))
	n.Set("skipped", routes.NewScalar(s.Skipped))
	n.Set("error", routes.NewScalar(s.Error))
	n.Set("capture", capture)
	return n
}

// epoch renders a timestamp as float seconds since the Unix epoch; the zero
// time is null.
func epoch(t time.Time) *routes.Node {
	if t.IsZero() {
		return routes.Null()
	}
	return routes.NewScalar(float64(t.UnixNano()) / 1e9)
}

func seconds(d time.Duration) *routes.Node {
	return routes.NewScalar(d.Seconds())
}

// Encode serializes the export tree in the given format.
func (c *Collector) Encode(format string) ([]byte, error) {
	node := c.ToNode()

	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(node, "", strings.Repeat(" ", c.indent))
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata as JSON: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "yml":
		data, err := yaml.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata as YAML: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Export writes the JSON export to path, creating parent directories.
func (c *Collector) Export(path string) error {
	return c.ExportAs(context.Background(), path, FormatJSON)
}

// ExportAs writes the export in format to path under the file lock of path.
// Encoding and I/O failures are returned.
func (c *Collector) ExportAs(ctx context.Context, path, format string) error {
	data, err := c.Encode(format)
	if err == nil {
		err = filelock.LockAndWrite(ctx, path, data)
	}
	metrics.RecordExport(strings.ToLower(format), err)
	if err != nil {
		c.logger.LogError(fmt.Sprintf("Export to %s failed: %v", path, err))
		return fmt.Errorf("failed to export metadata to %s: %w", path, err)
	}

	c.logger.LogInfo(fmt.Sprintf("Exported metadata for %d tests to %s", len(c.order), path))
	return nil
}
