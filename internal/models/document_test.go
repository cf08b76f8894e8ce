package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
  "session": {
    "run_id": "abc",
    "invocation_args": {"-v": true},
    "start_time": 100.5,
    "stop_time": 110.5,
    "duration": 10,
    "total_tests": 2,
    "total_passed": 1,
    "total_failed": 1,
    "total_skipped": 0,
    "total_errors": 0,
    "exitstatus": 1
  },
  "tests": {
    "deadbeef": {
      "nodeid": "tests/test_a.py::test_one",
      "relpath": "tests/test_a.py",
      "testcase": "test_one",
      "lineno": 3,
      "total_runs": 1,
      "runs": [
        {
          "parameters": {},
          "status": "failed",
          "start_time": null,
          "call": {"status": "failed", "failed": true, "capture": {"longrepr": "AssertionError: boom"}}
        }
      ],
      "custom": {"tags": ["slow"]}
    }
  }
}`

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "abc", doc.Session.RunID)
	assert.Equal(t, 1, doc.Session.ExitStatus)
	require.NotNil(t, doc.Session.StartTime)
	assert.InDelta(t, 100.5, *doc.Session.StartTime, 1e-9)

	test, ok := doc.Tests["deadbeef"]
	require.True(t, ok)
	assert.Equal(t, "test_one", test.Testcase)
	require.Len(t, test.Runs, 1)
	assert.Nil(t, test.Runs[0].StartTime)
	assert.Equal(t, StatusFailed, test.Runs[0].Call.Status)
	assert.Equal(t, "AssertionError: boom", test.Runs[0].Call.Capture.Longrepr)
}

func TestDecodeDocument_EmptyTests(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"session": {}}`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Tests)
	assert.Empty(t, doc.Tests)
}

func TestDecodeDocument_Malformed(t *testing.T) {
	_, err := DecodeDocument([]byte(`{"session": `))
	assert.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0644))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Len(t, doc.Tests, 1)

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
