package routes

import (
	"fmt"
	"strings"

	"github.com/harrison/testmeta/internal/logger"
	"github.com/harrison/testmeta/internal/metrics"
)

// Accessor returns the live value of a placeholder, or false when it is
// currently unavailable.
type Accessor func() (string, bool)

// Placeholders maps placeholder names to their accessors.
type Placeholders map[string]Accessor

// Resolver turns routes into paths against live state and writes values into
// the custom metadata tree. It is not safe for concurrent use.
type Resolver struct {
	tree         *Node
	placeholders Placeholders
	logger       logger.Logger
}

// NewResolver creates a resolver with an empty tree. A nil log discards
// warnings.
func NewResolver(placeholders Placeholders, log logger.Logger) *Resolver {
	if placeholders == nil {
		placeholders = Placeholders{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Resolver{
		tree:         NewMap(),
		placeholders: placeholders,
		logger:       log,
	}
}

// Tree returns the custom metadata tree.
func (r *Resolver) Tree() *Node {
	return r.tree
}

// Compile parses a route. Segments with malformed or unknown placeholders are
// dropped with a warning. Routes matching a reserved path, or left without
// segments, are rejected with a warning and false.
func (r *Resolver) Compile(raw string, array bool) (*Route, bool) {
	segs := normalize(raw)
	if len(segs) == 0 {
		r.logger.LogWarn(fmt.Sprintf("Ignoring empty route %q", raw))
		metrics.RecordRouteRejected(metrics.ReasonEmpty)
		return nil, false
	}

	if IsReserved(segs) {
		r.reject(raw)
		return nil, false
	}

	route := &Route{Raw: raw, Array: array}
	for _, s := range segs {
		parts, err := parseSegment(s)
		if err != nil {
			r.logger.LogWarn(fmt.Sprintf("Dropping segment of route %q: %v", raw, err))
			metrics.RecordRouteRejected(metrics.ReasonMalformed)
			continue
		}
		if name, ok := r.unknownPlaceholder(parts); ok {
			r.logger.LogWarn(fmt.Sprintf("Dropping segment %q of route %q: unknown placeholder {%s}", s, raw, name))
			metrics.RecordRouteRejected(metrics.ReasonPlaceholder)
			continue
		}
		route.segments = append(route.segments, segment{raw: s, parts: parts})
	}

	if len(route.segments) == 0 {
		r.logger.LogWarn(fmt.Sprintf("Ignoring route %q: no usable segments", raw))
		metrics.RecordRouteRejected(metrics.ReasonEmpty)
		return nil, false
	}
	return route, true
}

func (r *Resolver) unknownPlaceholder(parts []part) (string, bool) {
	for _, p := range parts {
		if !p.placeholder {
			continue
		}
		if _, ok := r.placeholders[p.text]; !ok {
			return p.text, true
		}
	}
	return "", false
}

func (r *Resolver) reject(route string) {
	r.logger.LogWarn(fmt.Sprintf("Route %q collides with a reserved path; write skipped", route))
	metrics.RecordRouteRejected(metrics.ReasonReserved)
}

// Resolve substitutes placeholders with their live values. A segment whose
// placeholder is unavailable is dropped. When the first segment equals the
// current test id, "tests" is prepended.
func (r *Resolver) Resolve(route *Route) []string {
	path := make([]string, 0, len(route.segments)+1)
	for _, s := range route.segments {
		text, ok := r.resolveSegment(s)
		if !ok {
			continue
		}
		path = append(path, text)
	}

	if len(path) > 0 {
		if id, ok := r.lookup("id"); ok && id != "" && path[0] == id {
			path = append([]string{"tests"}, path...)
		}
	}
	return path
}

func (r *Resolver) resolveSegment(s segment) (string, bool) {
	var b strings.Builder
	for _, p := range s.parts {
		if !p.placeholder {
			b.WriteString(p.text)
			continue
		}
		v, ok := r.lookup(p.text)
		if !ok {
			return "", false
		}
		b.WriteString(v)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func (r *Resolver) lookup(name string) (string, bool) {
	accessor, ok := r.placeholders[name]
	if !ok || accessor == nil {
		return "", false
	}
	return accessor()
}

// Write resolves route and stores value in the tree, appending for array
// routes. A resolved path that hits a reserved path is skipped with a warning
// and reported as false. Only an empty resolved path is an error.
func (r *Resolver) Write(route *Route, value any) (bool, error) {
	path := r.Resolve(route)
	if len(path) == 0 {
		return false, fmt.Errorf("route %q: %w", route.Raw, ErrEmptyPath)
	}
	if IsReserved(path) {
		r.reject(strings.Join(path, "."))
		return false, nil
	}

	if err := r.tree.SetPath(path, FromValue(value), route.Array); err != nil {
		return false, fmt.Errorf("route %q: %w", route.Raw, err)
	}
	r.logger.LogTrace(fmt.Sprintf("Route %s set at %s", route.Raw, strings.Join(path, ".")))
	return true, nil
}

// Set compiles a scalar route and writes value immediately.
func (r *Resolver) Set(raw string, value any) (bool, error) {
	route, ok := r.Compile(raw, false)
	if !ok {
		return false, nil
	}
	return r.Write(route, value)
}
