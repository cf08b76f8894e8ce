// Package history keeps exported sessions in SQLite so test outcomes can be
// compared across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// SessionRecord is one recorded session
type SessionRecord struct {
	RunID          string
	StartTime      time.Time
	StopTime       time.Time
	Duration       time.Duration
	TotalTests     int
	TotalPassed    int
	TotalFailed    int
	TotalSkipped   int
	TotalErrors    int
	ExitStatus     int
	InvocationArgs map[string]any
}

// RunRecord is one recorded run of a test
type RunRecord struct {
	RunID       string
	TestID      string
	NodeID      string
	RelPath     string
	Testcase    string
	RunIndex    int
	Status      string
	Duration    time.Duration
	Parameters  map[string]any
	Longrepr    string
	FailedStage string
	StartTime   time.Time // start of the session the run belongs to
}

// FlakyTest is a test that both passed and failed across recorded runs
type FlakyTest struct {
	TestID   string
	NodeID   string
	Runs     int
	Passes   int
	Failures int
	Sessions int
}

// FailureRate is the share of runs that failed or errored
func (f FlakyTest) FailureRate() float64 {
	if f.Runs == 0 {
		return 0
	}
	return float64(f.Failures) / float64(f.Runs)
}

// Store manages the SQLite history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordSession stores an exported document. Recording the same run id again
// replaces the earlier record.
func (s *Store) RecordSession(ctx context.Context, doc *models.Document) error {
	if doc.Session.RunID == "" {
		return fmt.Errorf("record session: run_id is required")
	}

	args, err := marshalJSON(doc.Session.InvocationArgs)
	if err != nil {
		return fmt.Errorf("marshal invocation args: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sess := doc.Session
	if _, err := tx.ExecContext(ctx, `DELETE FROM test_runs WHERE run_id = ?`, sess.RunID); err != nil {
		return fmt.Errorf("clear previous runs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions
		(run_id, start_time, stop_time, duration_seconds, total_tests, total_passed, total_failed, total_skipped, total_errors, exitstatus, invocation_args)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.RunID, nullFloat(sess.StartTime), nullFloat(sess.StopTime), sess.Duration,
		sess.TotalTests, sess.TotalPassed, sess.TotalFailed, sess.TotalSkipped, sess.TotalErrors,
		sess.ExitStatus, args)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO test_runs
		(run_id, test_id, nodeid, relpath, testcase, run_index, status, duration_seconds, parameters, longrepr, failed_stage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(doc.Tests))
	for id := range doc.Tests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		test := doc.Tests[id]
		for i, run := range test.Runs {
			params, err := marshalJSON(run.Parameters)
			if err != nil {
				return fmt.Errorf("marshal parameters of %s: %w", test.NodeID, err)
			}
			stage, longrepr := failure(run)
			if _, err := stmt.ExecContext(ctx, sess.RunID, id, test.NodeID, test.RelPath, test.Testcase,
				i, run.Status, run.Duration, params, longrepr, stage); err != nil {
				return fmt.Errorf("insert run %d of %s: %w", i, test.NodeID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// failure returns the first stage that failed and its failure text
func failure(run models.RunDoc) (string, string) {
	stages := []struct {
		name string
		doc  models.StageDoc
	}{
		{models.StageSetup, run.Setup},
		{models.StageCall, run.Call},
		{models.StageTeardown, run.Teardown},
	}
	for _, st := range stages {
		if st.doc.Failed || st.doc.Error {
			return st.name, st.doc.Capture.Longrepr
		}
	}
	return "", ""
}

// ListSessions returns recorded sessions, newest first. limit <= 0 means all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT run_id, start_time, stop_time, duration_seconds, total_tests, total_passed, total_failed,
		total_skipped, total_errors, exitstatus, invocation_args
		FROM sessions
		ORDER BY start_time DESC, recorded_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var start, stop sql.NullFloat64
		var duration float64
		var invocation sql.NullString
		if err := rows.Scan(&rec.RunID, &start, &stop, &duration, &rec.TotalTests, &rec.TotalPassed,
			&rec.TotalFailed, &rec.TotalSkipped, &rec.TotalErrors, &rec.ExitStatus, &invocation); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.StartTime = fromEpoch(start)
		rec.StopTime = fromEpoch(stop)
		rec.Duration = seconds(duration)
		if invocation.Valid && invocation.String != "" {
			if err := json.Unmarshal([]byte(invocation.String), &rec.InvocationArgs); err != nil {
				return nil, fmt.Errorf("unmarshal invocation args: %w", err)
			}
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// TestHistory returns the recorded runs of one test, newest session first.
// limit <= 0 means all.
func (s *Store) TestHistory(ctx context.Context, testID string, limit int) ([]RunRecord, error) {
	query := `SELECT r.run_id, r.test_id, r.nodeid, r.relpath, r.testcase, r.run_index, r.status,
		r.duration_seconds, r.parameters, r.longrepr, r.failed_stage, s.start_time
		FROM test_runs r JOIN sessions s ON s.run_id = r.run_id
		WHERE r.test_id = ?
		ORDER BY s.start_time DESC, r.run_index ASC`
	args := []interface{}{testID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query test history: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var relPath, testcase, params, longrepr, stage sql.NullString
		var duration float64
		var start sql.NullFloat64
		if err := rows.Scan(&rec.RunID, &rec.TestID, &rec.NodeID, &relPath, &testcase, &rec.RunIndex,
			&rec.Status, &duration, &params, &longrepr, &stage, &start); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		rec.RelPath = relPath.String
		rec.Testcase = testcase.String
		rec.Longrepr = longrepr.String
		rec.FailedStage = stage.String
		rec.Duration = seconds(duration)
		rec.StartTime = fromEpoch(start)
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &rec.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshal parameters: %w", err)
			}
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// FlakyTests returns tests with both passing and failing runs, most failures first
func (s *Store) FlakyTests(ctx context.Context) ([]FlakyTest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id, MAX(nodeid), COUNT(*),
		SUM(CASE WHEN status = 'passed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status IN ('failed', 'error') THEN 1 ELSE 0 END),
		COUNT(DISTINCT run_id)
		FROM test_runs
		GROUP BY test_id
		HAVING SUM(CASE WHEN status = 'passed' THEN 1 ELSE 0 END) > 0
		   AND SUM(CASE WHEN status IN ('failed', 'error') THEN 1 ELSE 0 END) > 0
		ORDER BY 5 DESC, test_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query flaky tests: %w", err)
	}
	defer rows.Close()

	var flaky []FlakyTest
	for rows.Next() {
		var f FlakyTest
		if err := rows.Scan(&f.TestID, &f.NodeID, &f.Runs, &f.Passes, &f.Failures, &f.Sessions); err != nil {
			return nil, fmt.Errorf("scan flaky row: %w", err)
		}
		flaky = append(flaky, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flaky rows: %w", err)
	}
	return flaky, nil
}

// PruneSessions deletes all but the newest keep sessions and their runs,
// returning how many sessions were removed
func (s *Store) PruneSessions(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stale := `SELECT run_id FROM sessions ORDER BY start_time DESC, recorded_at DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM test_runs WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("delete stale runs: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE run_id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return removed, nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromEpoch(v sql.NullFloat64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	sec := int64(v.Float64)
	nsec := int64((v.Float64 - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
