package logger

import (
	"time"

	"github.com/harrison/testmeta/internal/models"
)

// Logger is the leveled logging surface the collection core depends on.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// RunLogger extends Logger with test-result and summary reporting.
// ConsoleLogger, FileLogger, MultiLogger and NoOpLogger implement it.
type RunLogger interface {
	Logger
	LogTestResult(nodeID, status string, duration time.Duration)
	LogSummary(stats models.SessionStats, duration time.Duration, exitStatus int)
}

// TestDetailLogger records the full stage detail of a finished run.
type TestDetailLogger interface {
	LogTestDetail(testID, nodeID string, run models.TestRun) error
}

// ProgressLogger reports how many collected tests have finished.
type ProgressLogger interface {
	LogProgress(done, total int)
}

var (
	_ TestDetailLogger = (*FileLogger)(nil)
	_ TestDetailLogger = (*MultiLogger)(nil)
	_ ProgressLogger   = (*ConsoleLogger)(nil)
	_ ProgressLogger   = (*MultiLogger)(nil)

	_ RunLogger = (*ConsoleLogger)(nil)
	_ RunLogger = (*FileLogger)(nil)
	_ RunLogger = (*MultiLogger)(nil)
	_ RunLogger = (*NoOpLogger)(nil)
)

// MultiLogger fans every message out to a set of loggers.
type MultiLogger struct {
	loggers []RunLogger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...RunLogger) *MultiLogger {
	ml := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			ml.loggers = append(ml.loggers, l)
		}
	}
	return ml
}

func (ml *MultiLogger) LogTrace(message string) {
	for _, l := range ml.loggers {
		l.LogTrace(message)
	}
}

func (ml *MultiLogger) LogDebug(message string) {
	for _, l := range ml.loggers {
		l.LogDebug(message)
	}
}

func (ml *MultiLogger) LogInfo(message string) {
	for _, l := range ml.loggers {
		l.LogInfo(message)
	}
}

func (ml *MultiLogger) LogWarn(message string) {
	for _, l := range ml.loggers {
		l.LogWarn(message)
	}
}

func (ml *MultiLogger) LogError(message string) {
	for _, l := range ml.loggers {
		l.LogError(message)
	}
}

func (ml *MultiLogger) LogTestResult(nodeID, status string, duration time.Duration) {
	for _, l := range ml.loggers {
		l.LogTestResult(nodeID, status, duration)
	}
}

func (ml *MultiLogger) LogSummary(stats models.SessionStats, duration time.Duration, exitStatus int) {
	for _, l := range ml.loggers {
		l.LogSummary(stats, duration, exitStatus)
	}
}

// LogTestDetail forwards to every logger that records test detail and returns
// the first error.
func (ml *MultiLogger) LogTestDetail(testID, nodeID string, run models.TestRun) error {
	var firstErr error
	for _, l := range ml.loggers {
		if dl, ok := l.(TestDetailLogger); ok {
			if err := dl.LogTestDetail(testID, nodeID, run); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogProgress forwards to every logger that reports progress.
func (ml *MultiLogger) LogProgress(done, total int) {
	for _, l := range ml.loggers {
		if pl, ok := l.(ProgressLogger); ok {
			pl.LogProgress(done, total)
		}
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(message string) {}
func (n *NoOpLogger) LogDebug(message string) {}
func (n *NoOpLogger) LogInfo(message string)  {}
func (n *NoOpLogger) LogWarn(message string)  {}
func (n *NoOpLogger) LogError(message string) {}

func (n *NoOpLogger) LogTestResult(nodeID, status string, duration time.Duration) {}

func (n *NoOpLogger) LogSummary(stats models.SessionStats, duration time.Duration, exitStatus int) {
}
