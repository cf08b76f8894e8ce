package routes

import (
	"fmt"
	"strings"
)

// part is a literal piece of a segment or, when placeholder is set, a
// {name} token.
type part struct {
	text        string
	placeholder bool
}

type segment struct {
	raw   string
	parts []part
}

// Route is a parsed dotted route. Segments holding unknown or malformed
// placeholders have already been dropped.
type Route struct {
	Raw      string
	Array    bool
	segments []segment
}

// String returns the normalized route in dotted form.
func (r *Route) String() string {
	raws := make([]string, len(r.segments))
	for i, s := range r.segments {
		raws[i] = s.raw
	}
	return strings.Join(raws, ".")
}

// Segments returns the normalized segments, placeholders still unresolved.
func (r *Route) Segments() []string {
	return strings.Split(r.String(), ".")
}

// normalize splits a route and prefixes "tests" when it starts with {id} or
// {test_id}.
func normalize(raw string) []string {
	var segs []string
	for _, s := range strings.Split(strings.TrimSpace(raw), ".") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) > 0 && (segs[0] == wildcardID || segs[0] == wildcardTestID) {
		segs = append([]string{"tests"}, segs...)
	}
	return segs
}

// parseSegment splits a segment into literal text and {name} tokens.
func parseSegment(raw string) ([]part, error) {
	var parts []part
	rest := raw
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')
		if open < 0 {
			if closing >= 0 {
				return nil, fmt.Errorf("unbalanced '}' in %q", raw)
			}
			parts = append(parts, part{text: rest})
			break
		}
		if closing >= 0 && closing < open {
			return nil, fmt.Errorf("unbalanced '}' in %q", raw)
		}
		if open > 0 {
			parts = append(parts, part{text: rest[:open]})
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", raw)
		}
		name := strings.TrimSpace(rest[:end])
		if name == "" || strings.ContainsRune(name, '{') {
			return nil, fmt.Errorf("invalid placeholder in %q", raw)
		}
		parts = append(parts, part{text: name, placeholder: true})
		rest = rest[end+1:]
	}
	return parts, nil
}
