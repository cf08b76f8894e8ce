// Package meta holds the session and test entities that accumulate stage
// outcomes during a run, together with the error/failure classifier.
package meta

import (
	"strings"

	"github.com/harrison/testmeta/internal/models"
)

// Classifier decides whether a failed stage is an environment-level error or
// a plain assertion failure.
type Classifier struct {
	// AssertionPrefixes name exception types that mark a call failure as an
	// ordinary test failure.
	AssertionPrefixes []string
	// RuntimeErrors are searched for in the failure text when the last line
	// carries no exception type.
	RuntimeErrors []string
}

// DefaultClassifier returns the classifier for Python-style tracebacks.
func DefaultClassifier() *Classifier {
	return &Classifier{
		AssertionPrefixes: []string{"AssertionError"},
		RuntimeErrors: []string{
			"NameError",
			"TypeError",
			"ValueError",
			"AttributeError",
			"ImportError",
			"ZeroDivisionError",
		},
	}
}

// GoTestClassifier returns a classifier for `go test` failure output, where
// "--- FAIL" lines are assertion failures and panics or timeouts are errors.
func GoTestClassifier() *Classifier {
	return &Classifier{
		AssertionPrefixes: []string{"--- FAIL"},
		RuntimeErrors:     []string{"panic:", "test timed out"},
	}
}

// IsError reports whether a stage outcome counts as an error.
//
// Failed setup and teardown stages are always errors. A failed call stage is
// an error unless the last line of its failure text, with any leading "E"
// marker removed, names an assertion type, either as the text before the
// first colon ("AssertionError: msg") or as the final ": " field
// ("test_a.py:10: AssertionError"). Missing failure text is an error. When the last line holds no colon at all, the text is searched for
// known runtime error names.
func (c *Classifier) IsError(stage string, failed bool, longrepr string) bool {
	if !failed {
		return false
	}

	switch stage {
	case models.StageSetup, models.StageTeardown:
		return true
	case models.StageCall:
	default:
		return false
	}

	text := strings.TrimSpace(longrepr)
	if text == "" {
		return true
	}

	lastLine := text
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		lastLine = strings.TrimSpace(text[i+1:])
	}
	lastLine = trimGutter(lastLine)

	if prefix, _, found := strings.Cut(lastLine, ":"); found {
		if c.isAssertion(strings.TrimSpace(prefix)) {
			return false
		}
		fields := strings.Split(lastLine, ": ")
		if len(fields) > 1 && c.isAssertion(strings.TrimSpace(fields[len(fields)-1])) {
			return false
		}
		return true
	}

	if c.isAssertion(lastLine) {
		return false
	}
	for _, name := range c.RuntimeErrors {
		if strings.Contains(text, name) {
			return true
		}
	}
	return false
}

// trimGutter strips pytest's "E" error marker and the indentation after it.
func trimGutter(line string) string {
	if len(line) > 1 && line[0] == 'E' && (line[1] == ' ' || line[1] == '\t') {
		return strings.TrimSpace(line[1:])
	}
	return line
}

func (c *Classifier) isAssertion(s string) bool {
	for _, p := range c.AssertionPrefixes {
		if s == p {
			return true
		}
	}
	return false
}

// Outcome maps a stage report to the outcome used for statistics: the report
// outcome, or "error" when the stage was classified as an error.
func Outcome(result models.StageResult) string {
	if result.Error {
		return models.StatusError
	}
	return result.Status
}
