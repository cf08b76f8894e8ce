// Package logger provides leveled loggers for collection runs: a console
// logger for people watching the run and a file logger that keeps a per-run
// log plus per-test detail files.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/testmeta/internal/models"
	"github.com/mattn/go-isatty"
)

var levelColors = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgBlue),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
}

// ConsoleLogger writes "[HH:MM:SS] [LEVEL] message" lines to a writer.
// Messages below the configured level are dropped. Output is colored only
// when the writer is a terminal on stdout or stderr. Safe for concurrent use.
type ConsoleLogger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	color bool
}

// NewConsoleLogger creates a ConsoleLogger on w. A nil writer discards
// everything. An empty or unknown level means info.
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	lvl, _ := ParseLevel(level)
	return &ConsoleLogger{w: w, level: lvl, color: supportsColor(w)}
}

// supportsColor reports whether w is stdout or stderr attached to a terminal
// and NO_COLOR is unset.
func supportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) enabled(l Level) bool {
	return cl.w != nil && l >= cl.level
}

func (cl *ConsoleLogger) emit(text string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	io.WriteString(cl.w, text)
}

func (cl *ConsoleLogger) log(l Level, message string) {
	if !cl.enabled(l) {
		return
	}
	tag := l.Tag()
	if cl.color {
		tag = levelColors[l].Sprint(tag)
	}
	cl.emit(fmt.Sprintf("[%s] [%s] %s\n", clock(), tag, message))
}

func (cl *ConsoleLogger) LogTrace(message string) { cl.log(LevelTrace, message) }
func (cl *ConsoleLogger) LogDebug(message string) { cl.log(LevelDebug, message) }
func (cl *ConsoleLogger) LogInfo(message string)  { cl.log(LevelInfo, message) }
func (cl *ConsoleLogger) LogWarn(message string)  { cl.log(LevelWarn, message) }
func (cl *ConsoleLogger) LogError(message string) { cl.log(LevelError, message) }

// LogTestResult writes "[HH:MM:SS] <nodeid>: <STATUS> (<duration>)" at debug level.
func (cl *ConsoleLogger) LogTestResult(nodeID, status string, duration time.Duration) {
	if !cl.enabled(LevelDebug) {
		return
	}
	text := strings.ToUpper(status)
	if cl.color {
		text = StatusColor(status).Sprint(text)
	}
	cl.emit(fmt.Sprintf("[%s] %s: %s (%s)\n", clock(), nodeID, text, humanDuration(duration)))
}

// StatusColor returns the color used to render a run or stage status.
func StatusColor(status string) *color.Color {
	switch status {
	case models.StatusPassed:
		return color.New(color.FgGreen)
	case models.StatusFailed, models.StatusError:
		return color.New(color.FgRed)
	case models.StatusSkipped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// LogSummary writes the session totals at info level. Non-zero failure,
// skip and error counts are colored.
func (cl *ConsoleLogger) LogSummary(stats models.SessionStats, duration time.Duration, exitStatus int) {
	if !cl.enabled(LevelInfo) {
		return
	}

	ts := clock()
	header := "=== Session Summary ==="
	if cl.color {
		header = color.New(color.Bold).Sprint(header)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, header)
	fmt.Fprintf(&b, "[%s] Collected: %d\n", ts, stats.TotalTests)
	for _, row := range []struct {
		label  string
		n      int
		status string
	}{
		{"Passed", stats.TotalPassed, models.StatusPassed},
		{"Failed", stats.TotalFailed, models.StatusFailed},
		{"Skipped", stats.TotalSkipped, models.StatusSkipped},
		{"Errors", stats.TotalErrors, models.StatusError},
	} {
		text := fmt.Sprintf("%s: %d", row.label, row.n)
		if cl.color && row.n > 0 {
			text = StatusColor(row.status).Sprint(text)
		}
		fmt.Fprintf(&b, "[%s] %s\n", ts, text)
	}
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, humanDuration(duration))
	fmt.Fprintf(&b, "[%s] Exit status: %d\n", ts, exitStatus)

	cl.emit(b.String())
}

// LogProgress writes how many collected tests have finished at debug level,
// e.g. "Progress: [====      ] 4/10 (40%) (4/10 tests)".
func (cl *ConsoleLogger) LogProgress(done, total int) {
	if !cl.enabled(LevelDebug) {
		return
	}
	text := fmt.Sprintf("Progress: %s (%d/%d tests)", renderProgress(done, total, progressWidth), done, total)
	if cl.color {
		switch {
		case done < total:
			text = color.New(color.FgCyan).Sprint(text)
		case total > 0:
			text = color.New(color.FgGreen).Sprint(text)
		}
	}
	cl.emit(fmt.Sprintf("[%s] %s\n", clock(), text))
}

// clock is the wall time as HH:MM:SS.
func clock() string {
	return time.Now().Format("15:04:05")
}

// humanDuration renders d as "250ms" below a second, otherwise in whole
// seconds without trailing zero units ("5s", "1m30s", "2h15m", "3h").
func humanDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := d.Truncate(time.Second).String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
