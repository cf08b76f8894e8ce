// Package events dispatches named custom events to the routes bound to them.
package events

import (
	"fmt"

	"github.com/harrison/testmeta/internal/logger"
	"github.com/harrison/testmeta/internal/metrics"
	"github.com/harrison/testmeta/internal/routes"
)

// ValueFunc computes a handler value from the event context.
type ValueFunc func(ctx map[string]any) (any, error)

// Handler binds one route to an event.
type Handler struct {
	Event    string
	Route    *routes.Route
	Value    ValueFunc
	Default  any
	position int
}

// HandlerOption configures a handler at registration.
type HandlerOption func(*Handler)

// WithArray makes the route append each value to a list.
func WithArray() HandlerOption {
	return func(h *Handler) {
		h.Route.Array = true
	}
}

// WithValueFunc computes the value from the event context.
func WithValueFunc(fn ValueFunc) HandlerOption {
	return func(h *Handler) {
		h.Value = fn
	}
}

// WithDefault sets the value used when neither a value function nor event
// data is available.
func WithDefault(v any) HandlerOption {
	return func(h *Handler) {
		h.Default = v
	}
}

// Dispatcher holds the registered handlers of every event. Dispatch order
// follows registration order. It is not safe for concurrent use.
type Dispatcher struct {
	resolver  *routes.Resolver
	currentID func() (string, bool)
	handlers  map[string][]*Handler
	order     []string
	logger    logger.Logger
}

// NewDispatcher creates a dispatcher writing through resolver. currentID
// supplies the test id injected into event contexts and may be nil.
func NewDispatcher(resolver *routes.Resolver, currentID func() (string, bool), log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		resolver:  resolver,
		currentID: currentID,
		handlers:  make(map[string][]*Handler),
		logger:    log,
	}
}

// Register binds route to event. A route rejected by the resolver is not
// registered and false is returned.
func (d *Dispatcher) Register(route, event string, opts ...HandlerOption) bool {
	compiled, ok := d.resolver.Compile(route, false)
	if !ok {
		return false
	}

	h := &Handler{Event: event, Route: compiled}
	for _, opt := range opts {
		opt(h)
	}

	if _, exists := d.handlers[event]; !exists {
		d.order = append(d.order, event)
	}
	h.position = len(d.handlers[event])
	d.handlers[event] = append(d.handlers[event], h)

	d.logger.LogDebug(fmt.Sprintf("Registered route %s for event %s", compiled.String(), event))
	return true
}

// Events returns the names of events with handlers, in registration order.
func (d *Dispatcher) Events() []string {
	return append([]string{}, d.order...)
}

// Handlers returns the handlers bound to event.
func (d *Dispatcher) Handlers(event string) []*Handler {
	return append([]*Handler{}, d.handlers[event]...)
}

// Fire dispatches event to every bound handler and returns how many of them
// wrote a value. A mapping data payload is merged into the context; any other
// non-nil payload is stored under "data". The current test id is added as
// "test_id" unless already present. A failing handler is logged and does not
// stop the others.
func (d *Dispatcher) Fire(event string, data any, ctx map[string]any) int {
	handlers := d.handlers[event]
	if len(handlers) == 0 {
		return 0
	}

	eventCtx := make(map[string]any, len(ctx)+2)
	for k, v := range ctx {
		eventCtx[k] = v
	}
	switch payload := data.(type) {
	case nil:
	case map[string]any:
		for k, v := range payload {
			eventCtx[k] = v
		}
	default:
		eventCtx["data"] = payload
	}
	if _, set := eventCtx["test_id"]; !set && d.currentID != nil {
		if id, ok := d.currentID(); ok {
			eventCtx["test_id"] = id
		}
	}

	written := 0
	for _, h := range handlers {
		ok, err := d.dispatch(h, eventCtx)
		if err != nil {
			d.logger.LogError(fmt.Sprintf("Handler %d for event %s (route %s) failed: %v", h.position, event, h.Route.Raw, err))
			metrics.RecordHandlerFailure(event)
			continue
		}
		if ok {
			written++
		}
	}
	return written
}

func (d *Dispatcher) dispatch(h *Handler, eventCtx map[string]any) (written bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			written = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	value, err := h.resolveValue(eventCtx)
	if err != nil {
		return false, err
	}
	return d.resolver.Write(h.Route, value)
}

func (h *Handler) resolveValue(eventCtx map[string]any) (any, error) {
	if h.Value != nil {
		return h.Value(eventCtx)
	}
	if v, ok := eventCtx["data"]; ok {
		return v, nil
	}
	return h.Default, nil
}

// SetDirect writes value to route immediately, bypassing event dispatch.
func (d *Dispatcher) SetDirect(route string, value any) error {
	if _, err := d.resolver.Set(route, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", route, err)
	}
	return nil
}
