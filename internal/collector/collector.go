// Package collector coordinates the session and test entities behind the
// lifecycle hooks of a host test framework, and exports what they gather.
//
// A Collector assumes one test executes at a time: it keeps a single current
// test pointer that every stage hook and report updates. Hosts that interleave
// tests across goroutines must serialize their calls.
package collector

import (
	"fmt"
	"strconv"
	"time"

	"github.com/harrison/testmeta/internal/events"
	"github.com/harrison/testmeta/internal/logger"
	"github.com/harrison/testmeta/internal/meta"
	"github.com/harrison/testmeta/internal/metrics"
	"github.com/harrison/testmeta/internal/models"
	"github.com/harrison/testmeta/internal/routes"
)

// DefaultIndent is the JSON export indentation.
const DefaultIndent = 4

// Collector owns one session, every test seen so far and the custom
// metadata routes.
type Collector struct {
	session *meta.Session
	tests   map[string]*meta.Test
	order   []string
	current *meta.Test
	next    *meta.Test

	resolver   *routes.Resolver
	dispatcher *events.Dispatcher

	classifier *meta.Classifier
	clock      meta.Clock
	logger     logger.RunLogger
	indent     int

	// finished holds the ids of tests with at least one finished run.
	finished map[string]bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for warnings, results and the summary.
func WithLogger(l logger.RunLogger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClassifier sets the stage error classifier.
func WithClassifier(cl *meta.Classifier) Option {
	return func(c *Collector) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// WithClock sets the clock used for every timestamp.
func WithClock(clock meta.Clock) Option {
	return func(c *Collector) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIndent sets the JSON export indentation. Negative values are ignored.
func WithIndent(n int) Option {
	return func(c *Collector) {
		if n >= 0 {
			c.indent = n
		}
	}
}

// New creates a collector with an unstarted session.
func New(opts ...Option) *Collector {
	c := &Collector{
		tests:      make(map[string]*meta.Test),
		finished:   make(map[string]bool),
		classifier: meta.DefaultClassifier(),
		clock:      time.Now,
		logger:     logger.NewNoOpLogger(),
		indent:     DefaultIndent,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.session = meta.NewSession(c.clock)
	c.resolver = routes.NewResolver(c.placeholders(), c.logger)
	c.dispatcher = events.NewDispatcher(c.resolver, c.currentID, c.logger)
	return c
}

// placeholders is the table of names usable as {name} in routes.
func (c *Collector) placeholders() routes.Placeholders {
	fromTest := func(get func(*meta.Test) string) routes.Accessor {
		return func() (string, bool) {
			if c.current == nil {
				return "", false
			}
			v := get(c.current)
			return v, v != ""
		}
	}

	return routes.Placeholders{
		"id":        fromTest((*meta.Test).ID),
		"test_id":   fromTest((*meta.Test).ID),
		"nodeid":    fromTest((*meta.Test).NodeID),
		"relpath":   fromTest((*meta.Test).RelPath),
		"abspath":   fromTest((*meta.Test).AbsPath),
		"filename":  fromTest((*meta.Test).Filename),
		"testcase":  fromTest((*meta.Test).Testcase),
		"stage":     fromTest((*meta.Test).CurrentStage),
		"testindex": fromTest(func(t *meta.Test) string { return strconv.Itoa(t.TestIndex()) }),
		"lineno": fromTest(func(t *meta.Test) string {
			if t.Lineno() < 0 {
				return ""
			}
			return strconv.Itoa(t.Lineno())
		}),
		"run_id": func() (string, bool) {
			return c.session.RunID(), true
		},
		"exitstatus": func() (string, bool) {
			if !c.session.HasFinished() {
				return "", false
			}
			return strconv.Itoa(c.session.ExitStatus()), true
		},
	}
}

func (c *Collector) currentID() (string, bool) {
	if c.current == nil || c.current.ID() == "" {
		return "", false
	}
	return c.current.ID(), true
}

// testFor returns the test entity for item, creating it the first time its
// identity is seen, and refreshes it from item.
func (c *Collector) testFor(item models.Item) *meta.Test {
	id := meta.GenerateID(item.RelPath, item.Name)
	t, ok := c.tests[id]
	if !ok {
		t = meta.NewTest(c.clock, c.classifier, c.session)
		c.tests[id] = t
		c.order = append(c.order, id)
		c.logger.LogTrace(fmt.Sprintf("New test %s (%s)", id, item.NodeID))
	}
	t.Initialize(item)
	return t
}

// Configure stores the invocation arguments of the run.
func (c *Collector) Configure(args []string) {
	c.session.SetInvocationArgs(ParseInvocationArgs(args))
}

// SessionStart starts the session. Only the first call has effect.
func (c *Collector) SessionStart() bool {
	if !c.session.Start() {
		c.logger.LogDebug("Session already started")
		return false
	}
	c.logger.LogInfo(fmt.Sprintf("Session %s started", c.session.RunID()))
	return true
}

// CollectionFinish records how many items were collected.
func (c *Collector) CollectionFinish(collected int) {
	c.session.SetTotalCollected(collected)
	c.logger.LogInfo(fmt.Sprintf("Collected %d tests", collected))
}

// RuntestProtocol makes item the current test and prepares a descriptor of
// the item that runs after it. next may be nil for the last item.
func (c *Collector) RuntestProtocol(item models.Item, next *models.Item) {
	c.current = c.testFor(item)
	c.next = nil
	if next != nil {
		nt := meta.NewTest(c.clock, c.classifier, nil)
		nt.Initialize(*next)
		c.next = nt
	}
}

// RuntestSetup enters the setup stage of item.
func (c *Collector) RuntestSetup(item models.Item) {
	c.startStage(item, models.StageSetup)
}

// RuntestCall enters the call stage of item.
func (c *Collector) RuntestCall(item models.Item) {
	c.startStage(item, models.StageCall)
}

// RuntestTeardown enters the teardown stage of item.
func (c *Collector) RuntestTeardown(item models.Item) {
	c.startStage(item, models.StageTeardown)
}

func (c *Collector) startStage(item models.Item, stage string) {
	t := c.testFor(item)
	t.StartStage(stage)
	c.current = t
	c.logger.LogTrace(fmt.Sprintf("%s: %s started", item.NodeID, stage))
}

// LogReport records a stage report into the current test. A teardown report
// finishes the test and clears the current pointer. Reports arriving without
// a current test or active stage are ignored.
func (c *Collector) LogReport(report models.Report) {
	t := c.current
	if t == nil {
		c.logger.LogDebug(fmt.Sprintf("Ignoring %s report for %s: no current test", report.When, report.NodeID))
		return
	}

	result, ok := t.FinishStage(report)
	if !ok {
		c.logger.LogDebug(fmt.Sprintf("Ignoring %s report for %s: no active stage", report.When, report.NodeID))
	} else {
		metrics.RecordStageOutcome(report.When, meta.Outcome(result))
	}

	if report.When != models.StageTeardown {
		return
	}

	t.Finish()
	c.finished[t.ID()] = true
	if run := t.CurrentRun(); run != nil {
		c.logger.LogTestResult(t.NodeID(), run.Status, run.Duration)
		if dl, ok := c.logger.(logger.TestDetailLogger); ok {
			if err := dl.LogTestDetail(t.ID(), t.NodeID(), *run); err != nil {
				c.logger.LogWarn(fmt.Sprintf("Failed to write detail log for %s: %v", t.NodeID(), err))
			}
		}
	}
	if pl, ok := c.logger.(logger.ProgressLogger); ok {
		done, total := len(c.finished), c.session.Stats().TotalTests
		pl.LogProgress(done, max(done, total))
	}
	c.current = nil
}

// SessionFinish finishes the session with the host exit status. Only the
// first call has effect.
func (c *Collector) SessionFinish(exitStatus int) bool {
	if !c.session.Finish(exitStatus) {
		c.logger.LogDebug("Session already finished")
		return false
	}

	stats := c.session.Stats()
	duration := c.session.Duration()
	c.logger.LogSummary(stats, duration, exitStatus)
	metrics.RecordSession(c.session.RunID(), stats.TotalTests, stats.TotalPassed, stats.TotalFailed,
		stats.TotalSkipped, stats.TotalErrors, duration)
	return true
}

// RegisterRoute binds route to a custom event. It returns false when the
// route is rejected.
func (c *Collector) RegisterRoute(route, event string, opts ...events.HandlerOption) bool {
	return c.dispatcher.Register(route, event, opts...)
}

// TriggerEvent fires a custom event and returns how many routes were written.
func (c *Collector) TriggerEvent(event string, data any, ctx map[string]any) int {
	return c.dispatcher.Fire(event, data, ctx)
}

// SetCustomMeta writes value to route immediately.
func (c *Collector) SetCustomMeta(route string, value any) error {
	return c.dispatcher.SetDirect(route, value)
}

// Dispatcher returns the custom event dispatcher.
func (c *Collector) Dispatcher() *events.Dispatcher {
	return c.dispatcher
}

// CustomTree returns the tree of custom metadata written so far.
func (c *Collector) CustomTree() *routes.Node {
	return c.resolver.Tree()
}
