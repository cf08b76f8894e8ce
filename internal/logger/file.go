package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/testmeta/internal/models"
)

// FileLogger writes a timestamped run log (run-YYYYMMDD-HHMMSS.log) into a
// log directory, points latest.log at it, and appends per-test detail to
// tests/<id>.log. Safe for concurrent use.
type FileLogger struct {
	mu       sync.Mutex
	level    Level
	testsDir string
	runPath  string
	run      *os.File
}

// NewFileLogger creates a FileLogger in .testmeta/logs at info level.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(filepath.Join(".testmeta", "logs"), "info")
}

// NewFileLoggerWithDir creates a FileLogger in dir at info level.
func NewFileLoggerWithDir(dir string) (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(dir, "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger in dir at the given level.
func NewFileLoggerWithDirAndLevel(dir, level string) (*FileLogger, error) {
	testsDir := filepath.Join(dir, "tests")
	if err := os.MkdirAll(testsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runPath := filepath.Join(dir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	run, err := os.OpenFile(runPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}
	if err := pointLatest(dir, filepath.Base(runPath)); err != nil {
		run.Close()
		return nil, err
	}

	lvl, _ := ParseLevel(level)
	fl := &FileLogger{level: lvl, testsDir: testsDir, runPath: runPath, run: run}
	fl.append(fmt.Sprintf("=== testmeta Run Log ===\nStarted at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// pointLatest replaces dir/latest.log with a relative symlink to name.
func pointLatest(dir, name string) error {
	link := filepath.Join(dir, "latest.log")
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(name, link); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runPath
}

// append writes text to the run log and syncs it. Writes after Close are dropped.
func (fl *FileLogger) append(text string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.run == nil {
		return
	}
	fl.run.WriteString(text)
	fl.run.Sync()
}

func (fl *FileLogger) log(l Level, message string) {
	if l < fl.level {
		return
	}
	fl.append(fmt.Sprintf("[%s] [%s] %s\n", clock(), l.Tag(), message))
}

func (fl *FileLogger) LogTrace(message string) { fl.log(LevelTrace, message) }
func (fl *FileLogger) LogDebug(message string) { fl.log(LevelDebug, message) }
func (fl *FileLogger) LogInfo(message string)  { fl.log(LevelInfo, message) }
func (fl *FileLogger) LogWarn(message string)  { fl.log(LevelWarn, message) }
func (fl *FileLogger) LogError(message string) { fl.log(LevelError, message) }

// LogTestResult records one finished run at debug level, with millisecond
// precision.
func (fl *FileLogger) LogTestResult(nodeID, status string, duration time.Duration) {
	if LevelDebug < fl.level {
		return
	}
	fl.append(fmt.Sprintf("[%s] %s: %s (%.3fs)\n", clock(), nodeID, strings.ToUpper(status), duration.Seconds()))
}

// LogSummary records the session totals at info level.
func (fl *FileLogger) LogSummary(stats models.SessionStats, duration time.Duration, exitStatus int) {
	if LevelInfo < fl.level {
		return
	}

	ts := clock()
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] === SESSION SUMMARY ===\n", ts)
	for _, row := range []struct {
		label string
		value any
	}{
		{"Collected:", stats.TotalTests},
		{"Passed:", stats.TotalPassed},
		{"Failed:", stats.TotalFailed},
		{"Skipped:", stats.TotalSkipped},
		{"Errors:", stats.TotalErrors},
		{"Total time:", fmt.Sprintf("%.1fs", duration.Seconds())},
		{"Exit status:", exitStatus},
		{"Completed at:", time.Now().Format(time.RFC3339)},
	} {
		fmt.Fprintf(&b, "[%s] %-14s%v\n", ts, row.label, row.value)
	}
	fl.append(b.String())
}

// LogTestDetail appends the stage outcomes and captured output of one run to
// tests/<testID>.log. Parametrized runs of the same test share a file.
func (fl *FileLogger) LogTestDetail(testID, nodeID string, run models.TestRun) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\nStatus: %s\nDuration: %.3fs\n", nodeID, run.Status, run.Duration.Seconds())
	if len(run.Parameters) > 0 {
		fmt.Fprintf(&b, "Parameters: %v\n", run.Parameters)
	}
	b.WriteString("\n")

	for _, name := range models.Stages {
		stage := run.Stage(name)
		if !stage.Populated() {
			continue
		}
		fmt.Fprintf(&b, "--- %s: %s (%.3fs)\n", name, stage.Status, stage.Duration.Seconds())
		for _, section := range [][2]string{
			{"stdout", stage.Capture.Stdout},
			{"stderr", stage.Capture.Stderr},
			{"log", stage.Capture.Log},
			{"longrepr", stage.Capture.Longrepr},
		} {
			if section[1] != "" {
				fmt.Fprintf(&b, "%s:\n%s\n", section[0], strings.TrimRight(section[1], "\n"))
			}
		}
	}
	b.WriteString("\n")

	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.testsDir, testID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open test log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write test log: %w", err)
	}
	return nil
}

// Close syncs and closes the run log. Calling it again is a no-op.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.run == nil {
		return nil
	}
	run := fl.run
	fl.run = nil
	if err := run.Sync(); err != nil {
		run.Close()
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := run.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	return nil
}
