package logger

import "strings"

// Level is a log severity; higher values are more severe.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"trace", "debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return "info"
	}
	return levelNames[l]
}

// Tag is the upper-case form written in log lines.
func (l Level) Tag() string {
	return strings.ToUpper(l.String())
}

// ParseLevel parses a level name, ignoring case and surrounding space.
// Unknown or empty names yield LevelInfo and false.
func ParseLevel(name string) (Level, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range levelNames {
		if n == name {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// IsValidLevel reports whether level is exactly one of trace, debug, info,
// warn or error.
func IsValidLevel(level string) bool {
	for _, n := range levelNames {
		if n == level {
			return true
		}
	}
	return false
}
