// Package hooks defines a line-delimited JSON protocol for the lifecycle of a
// test run, so a host harness running in another process can drive a
// collector by writing one event per line.
package hooks

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/harrison/testmeta/internal/collector"
	"github.com/harrison/testmeta/internal/events"
	"github.com/harrison/testmeta/internal/models"
)

// Event names
const (
	EventConfigure        = "configure"
	EventSessionStart     = "session_start"
	EventCollectionFinish = "collection_finish"
	EventRuntestProtocol  = "runtest_protocol"
	EventSetup            = "setup"
	EventCall             = "call"
	EventTeardown         = "teardown"
	EventReport           = "report"
	EventRegister         = "register"
	EventCustom           = "custom"
	EventSet              = "set"
	EventSessionFinish    = "session_finish"
)

var (
	// ErrUnknownEvent is returned for an event name outside the protocol.
	ErrUnknownEvent = errors.New("unknown lifecycle event")
	// ErrMissingField is returned when an event lacks a field it requires.
	ErrMissingField = errors.New("missing required field")
)

// maxLineSize bounds one encoded event; captured output can be large.
const maxLineSize = 10 * 1024 * 1024

// Event is one line of the stream. Only the fields relevant to Event are read.
type Event struct {
	Event string `json:"event"`

	Args       []string `json:"args,omitempty"`       // configure
	Count      int      `json:"count,omitempty"`      // collection_finish
	ExitStatus int      `json:"exitstatus,omitempty"` // session_finish

	Item   *Item   `json:"item,omitempty"`   // runtest_protocol, setup, call, teardown
	Next   *Item   `json:"next,omitempty"`   // runtest_protocol
	Report *Report `json:"report,omitempty"` // report

	Name    string         `json:"name,omitempty"`    // custom, register
	Data    any            `json:"data,omitempty"`    // custom
	Context map[string]any `json:"context,omitempty"` // custom
	Route   string         `json:"route,omitempty"`   // register, set
	Array   bool           `json:"array,omitempty"`   // register
	Default any            `json:"default,omitempty"` // register
	Value   any            `json:"value,omitempty"`   // set
}

// Item is the wire form of a collected test item.
type Item struct {
	NodeID       string         `json:"nodeid"`
	Path         string         `json:"path,omitempty"`
	RelPath      string         `json:"relpath"`
	Lineno       *int           `json:"lineno,omitempty"`
	Name         string         `json:"name"`
	FixtureNames []string       `json:"fixture_names,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// Model converts the wire item. A missing line number becomes -1.
func (i Item) Model() models.Item {
	line := -1
	if i.Lineno != nil {
		line = *i.Lineno
	}
	return models.Item{
		NodeID:       i.NodeID,
		Path:         i.Path,
		RelPath:      i.RelPath,
		Line:         line,
		Name:         i.Name,
		FixtureNames: i.FixtureNames,
		Parameters:   i.Parameters,
	}
}

// Report is the wire form of a stage report. Times are float seconds since
// the Unix epoch and durations are float seconds.
type Report struct {
	NodeID   string  `json:"nodeid"`
	When     string  `json:"when"`
	Outcome  string  `json:"outcome"`
	Start    float64 `json:"start,omitempty"`
	Stop     float64 `json:"stop,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Longrepr string  `json:"longrepr,omitempty"`
	Stdout   string  `json:"stdout,omitempty"`
	Stderr   string  `json:"stderr,omitempty"`
	Log      string  `json:"log,omitempty"`
}

// Model converts the wire report.
func (r Report) Model() models.Report {
	return models.Report{
		NodeID:   r.NodeID,
		When:     r.When,
		Outcome:  r.Outcome,
		Start:    FromEpoch(r.Start),
		Stop:     FromEpoch(r.Stop),
		Duration: time.Duration(r.Duration * float64(time.Second)),
		Longrepr: r.Longrepr,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		Log:      r.Log,
	}
}

// FromEpoch converts float seconds since the Unix epoch; 0 is the zero time.
func FromEpoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// ToEpoch is the inverse of FromEpoch.
func ToEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// Decode parses one line of the stream.
func Decode(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Event == "" {
		return ev, fmt.Errorf("event name: %w", ErrMissingField)
	}
	return ev, nil
}

// Apply delivers one event to the collector.
func Apply(c *collector.Collector, ev Event) error {
	switch ev.Event {
	case EventConfigure:
		c.Configure(ev.Args)
	case EventSessionStart:
		c.SessionStart()
	case EventCollectionFinish:
		c.CollectionFinish(ev.Count)
	case EventRuntestProtocol:
		if ev.Item == nil {
			return fmt.Errorf("%s item: %w", ev.Event, ErrMissingField)
		}
		var next *models.Item
		if ev.Next != nil {
			n := ev.Next.Model()
			next = &n
		}
		c.RuntestProtocol(ev.Item.Model(), next)
	case EventSetup, EventCall, EventTeardown:
		if ev.Item == nil {
			return fmt.Errorf("%s item: %w", ev.Event, ErrMissingField)
		}
		item := ev.Item.Model()
		switch ev.Event {
		case EventSetup:
			c.RuntestSetup(item)
		case EventCall:
			c.RuntestCall(item)
		default:
			c.RuntestTeardown(item)
		}
	case EventReport:
		if ev.Report == nil {
			return fmt.Errorf("%s body: %w", ev.Event, ErrMissingField)
		}
		c.LogReport(ev.Report.Model())
	case EventRegister:
		if ev.Route == "" || ev.Name == "" {
			return fmt.Errorf("%s route and name: %w", ev.Event, ErrMissingField)
		}
		opts := []events.HandlerOption{events.WithDefault(ev.Default)}
		if ev.Array {
			opts = append(opts, events.WithArray())
		}
		c.RegisterRoute(ev.Route, ev.Name, opts...)
	case EventCustom:
		if ev.Name == "" {
			return fmt.Errorf("%s name: %w", ev.Event, ErrMissingField)
		}
		c.TriggerEvent(ev.Name, ev.Data, ev.Context)
	case EventSet:
		if ev.Route == "" {
			return fmt.Errorf("%s route: %w", ev.Event, ErrMissingField)
		}
		return c.SetCustomMeta(ev.Route, ev.Value)
	case EventSessionFinish:
		c.SessionFinish(ev.ExitStatus)
	default:
		return fmt.Errorf("%q: %w", ev.Event, ErrUnknownEvent)
	}
	return nil
}

// Replay reads events from r and applies them in order. It stops at the first
// undecodable or rejected line and returns the number of events applied.
// Blank lines are skipped.
func Replay(ctx context.Context, r io.Reader, c *collector.Collector) (int, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	applied := 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ev, err := Decode([]byte(line))
		if err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := Apply(c, ev); err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNum, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("failed to read event stream: %w", err)
	}
	return applied, nil
}

// Writer encodes events one per line.
type Writer struct {
	enc *json.Encoder
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes ev as one line.
func (w *Writer) Write(ev Event) error {
	if err := w.enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Event, err)
	}
	return nil
}
