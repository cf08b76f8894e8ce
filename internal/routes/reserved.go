package routes

import (
	"strings"
)

// Wildcard segments of reserved paths. They match any single segment.
const (
	wildcardID        = "{id}"
	wildcardTestID    = "{test_id}"
	wildcardTestIndex = "{testindex}"
)

var stageFields = []string{
	"status",
	"start_time",
	"stop_time",
	"duration",
	"passed",
	"failed",
	"skipped",
	"error",
	"capture",
	"capture.stdout",
	"capture.stderr",
	"capture.log",
	"capture.longrepr",
}

// reservedPaths is the closed list of paths owned by the exported schema.
var reservedPaths = buildReserved()

func buildReserved() [][]string {
	paths := []string{
		"session",
		"session.run_id",
		"session.invocation_args",
		"session.start_time",
		"session.stop_time",
		"session.duration",
		"session.total_tests",
		"session.total_passed",
		"session.total_failed",
		"session.total_skipped",
		"session.total_errors",
		"session.exitstatus",

		"tests",
		"tests.{id}",
		"tests.{id}.nodeid",
		"tests.{id}.relpath",
		"tests.{id}.abspath",
		"tests.{id}.hierarchy",
		"tests.{id}.filename",
		"tests.{id}.testcase",
		"tests.{id}.lineno",
		"tests.{id}.fixture_names",
		"tests.{id}.start_time",
		"tests.{id}.stop_time",
		"tests.{id}.duration",
		"tests.{id}.total_tests",
		"tests.{id}.total_runs",
		"tests.{id}.total_passed",
		"tests.{id}.total_failed",
		"tests.{id}.total_skipped",
		"tests.{id}.total_errors",
		"tests.{id}.runs",

		"tests.{id}.runs.{testindex}",
		"tests.{id}.runs.{testindex}.parameters",
		"tests.{id}.runs.{testindex}.status",
		"tests.{id}.runs.{testindex}.start_time",
		"tests.{id}.runs.{testindex}.stop_time",
		"tests.{id}.runs.{testindex}.duration",
	}

	for _, stage := range []string{"setup", "call", "teardown"} {
		base := "tests.{id}.runs.{testindex}." + stage
		paths = append(paths, base)
		for _, field := range stageFields {
			paths = append(paths, base+"."+field)
		}
	}

	out := make([][]string, len(paths))
	for i, p := range paths {
		out[i] = strings.Split(p, ".")
	}
	return out
}

// ReservedPaths returns the reserved path list in dotted form.
func ReservedPaths() []string {
	out := make([]string, len(reservedPaths))
	for i, p := range reservedPaths {
		out[i] = strings.Join(p, ".")
	}
	return out
}

// IsReserved reports whether path exactly matches a reserved path. The
// {id}, {test_id} and {testindex} segments of reserved paths match any
// segment, so both raw routes and resolved paths can be checked.
func IsReserved(path []string) bool {
	for _, reserved := range reservedPaths {
		if matchReserved(reserved, path) {
			return true
		}
	}
	return false
}

// IsReservedRoute is IsReserved for a dotted route string.
func IsReservedRoute(route string) bool {
	return IsReserved(strings.Split(route, "."))
}

func matchReserved(reserved, path []string) bool {
	if len(reserved) != len(path) {
		return false
	}
	for i, seg := range reserved {
		switch seg {
		case wildcardID, wildcardTestID, wildcardTestIndex:
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
