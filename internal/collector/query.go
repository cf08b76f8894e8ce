package collector

import (
	"time"

	"github.com/harrison/testmeta/internal/meta"
	"github.com/harrison/testmeta/internal/models"
)

// Session returns the session entity.
func (c *Collector) Session() *meta.Session {
	return c.session
}

// Tests returns every test in first-seen order.
func (c *Collector) Tests() []*meta.Test {
	out := make([]*meta.Test, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tests[id])
	}
	return out
}

// CurrentTest returns the test in flight, or nil between tests.
func (c *Collector) CurrentTest() *meta.Test {
	return c.current
}

// NextTest returns the descriptor of the item scheduled after the current
// one, or nil.
func (c *Collector) NextTest() *meta.Test {
	return c.next
}

// TestByID returns the test with the given identity.
func (c *Collector) TestByID(id string) (*meta.Test, bool) {
	t, ok := c.tests[id]
	return t, ok
}

// TestByNodeID returns the first test whose latest node id matches.
func (c *Collector) TestByNodeID(nodeID string) (*meta.Test, bool) {
	for _, t := range c.Tests() {
		if t.NodeID() == nodeID {
			return t, true
		}
	}
	return nil, false
}

// TestsByFilename returns the tests defined in the named file.
func (c *Collector) TestsByFilename(filename string) []*meta.Test {
	var out []*meta.Test
	for _, t := range c.Tests() {
		if t.Filename() == filename {
			out = append(out, t)
		}
	}
	return out
}

// TestsByStatus returns the tests with at least one run in status.
func (c *Collector) TestsByStatus(status string) []*meta.Test {
	var out []*meta.Test
	for _, t := range c.Tests() {
		if t.HasStatus(status) {
			out = append(out, t)
		}
	}
	return out
}

func (c *Collector) FailedTests() []*meta.Test  { return c.TestsByStatus(models.StatusFailed) }
func (c *Collector) PassedTests() []*meta.Test  { return c.TestsByStatus(models.StatusPassed) }
func (c *Collector) SkippedTests() []*meta.Test { return c.TestsByStatus(models.StatusSkipped) }
func (c *Collector) ErrorTests() []*meta.Test   { return c.TestsByStatus(models.StatusError) }

// Session shortcuts.

func (c *Collector) SessionStartTime() time.Time    { return c.session.StartTime() }
func (c *Collector) SessionDuration() time.Duration { return c.session.Duration() }
func (c *Collector) TotalTests() int                { return c.session.Stats().TotalTests }
func (c *Collector) TotalPassed() int               { return c.session.Stats().TotalPassed }
func (c *Collector) TotalFailed() int               { return c.session.Stats().TotalFailed }
func (c *Collector) TotalSkipped() int              { return c.session.Stats().TotalSkipped }
func (c *Collector) TotalErrors() int               { return c.session.Stats().TotalErrors }
func (c *Collector) ExitStatus() int                { return c.session.ExitStatus() }

// Current test shortcuts. They return zero values between tests; Lineno
// returns -1.

func (c *Collector) TestID() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID()
}

func (c *Collector) Testcase() string {
	if c.current == nil {
		return ""
	}
	return c.current.Testcase()
}

func (c *Collector) Filename() string {
	if c.current == nil {
		return ""
	}
	return c.current.Filename()
}

func (c *Collector) RelPath() string {
	if c.current == nil {
		return ""
	}
	return c.current.RelPath()
}

func (c *Collector) Lineno() int {
	if c.current == nil {
		return -1
	}
	return c.current.Lineno()
}

func (c *Collector) CurrentStage() string {
	if c.current == nil {
		return ""
	}
	return c.current.CurrentStage()
}

func (c *Collector) Parameters() map[string]any {
	if c.current == nil {
		return map[string]any{}
	}
	return c.current.Parameters()
}

func (c *Collector) FixtureNames() []string {
	if c.current == nil {
		return []string{}
	}
	return c.current.FixtureNames()
}
