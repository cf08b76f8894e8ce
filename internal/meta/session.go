package meta

import (
	"time"

	"github.com/google/uuid"
	"github.com/harrison/testmeta/internal/models"
)

// Clock returns the current time. Entities take one so tests can pin timings.
type Clock func() time.Time

// Session tracks run-wide timing and call-stage outcome counters.
// Start and Finish are guarded: only the first call of each has effect.
type Session struct {
	runID          string
	clock          Clock
	startTime      time.Time
	stopTime       time.Time
	started        bool
	finished       bool
	exitStatus     int
	stats          models.SessionStats
	invocationArgs map[string]any
}

// NewSession creates an unstarted session with a fresh run id.
// A nil clock defaults to time.Now.
func NewSession(clock Clock) *Session {
	if clock == nil {
		clock = time.Now
	}
	return &Session{
		runID:          uuid.New().String(),
		clock:          clock,
		invocationArgs: make(map[string]any),
	}
}

// Start records the session start time. It returns false if already started.
func (s *Session) Start() bool {
	if s.started {
		return false
	}
	s.startTime = s.clock()
	s.started = true
	return true
}

// Finish records the stop time and exit status. It returns false if already finished.
func (s *Session) Finish(exitStatus int) bool {
	if s.finished {
		return false
	}
	s.stopTime = s.clock()
	s.exitStatus = exitStatus
	s.finished = true
	return true
}

// SetTotalCollected sets the number of collected test items.
func (s *Session) SetTotalCollected(n int) {
	s.stats.TotalTests = n
}

// RecordOutcome increments the counter for a call-stage outcome.
// Anything other than passed, failed or skipped counts as an error.
func (s *Session) RecordOutcome(outcome string) {
	switch outcome {
	case models.StatusPassed:
		s.stats.TotalPassed++
	case models.StatusFailed:
		s.stats.TotalFailed++
	case models.StatusSkipped:
		s.stats.TotalSkipped++
	default:
		s.stats.TotalErrors++
	}
}

// Duration is zero before Start, live elapsed time while running, and fixed
// once finished. It is never negative.
func (s *Session) Duration() time.Duration {
	if !s.started {
		return 0
	}
	end := s.stopTime
	if !s.finished {
		end = s.clock()
	}
	if d := end.Sub(s.startTime); d > 0 {
		return d
	}
	return 0
}

// SetInvocationArgs stores the parsed command line of the run.
func (s *Session) SetInvocationArgs(args map[string]any) {
	s.invocationArgs = make(map[string]any, len(args))
	for k, v := range args {
		s.invocationArgs[k] = v
	}
}

// InvocationArgs returns a copy of the parsed command line.
func (s *Session) InvocationArgs() map[string]any {
	out := make(map[string]any, len(s.invocationArgs))
	for k, v := range s.invocationArgs {
		out[k] = v
	}
	return out
}

func (s *Session) RunID() string              { return s.runID }
func (s *Session) Stats() models.SessionStats { return s.stats }
func (s *Session) ExitStatus() int            { return s.exitStatus }
func (s *Session) HasStarted() bool           { return s.started }
func (s *Session) HasFinished() bool          { return s.finished }

// StartTime returns the start time; the zero time means not started.
func (s *Session) StartTime() time.Time { return s.startTime }

// StopTime returns the stop time; the zero time means not finished.
func (s *Session) StopTime() time.Time { return s.stopTime }
