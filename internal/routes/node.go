// Package routes implements the custom metadata tree and the dotted route
// paths, with {placeholder} tokens, that address locations inside it.
package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// ErrEmptyPath is returned when a write resolves to no path segments.
var ErrEmptyPath = errors.New("route resolved to an empty path")

// Kind identifies the variant held by a Node.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindList
	KindMap
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Node is one value of the metadata tree: null, scalar, list or mapping.
// Mapping keys keep insertion order.
type Node struct {
	kind   Kind
	scalar any
	list   []*Node
	fields *orderedmap.OrderedMap[string, *Node]
}

// NewMap returns an empty mapping node.
func NewMap() *Node {
	return &Node{kind: KindMap, fields: orderedmap.New[string, *Node]()}
}

// NewList returns a list node holding items.
func NewList(items ...*Node) *Node {
	return &Node{kind: KindList, list: append([]*Node{}, items...)}
}

// NewScalar returns a scalar node. A nil value yields a null node.
func NewScalar(v any) *Node {
	if v == nil {
		return &Node{kind: KindNull}
	}
	return &Node{kind: KindScalar, scalar: v}
}

// Null returns a null node.
func Null() *Node {
	return &Node{kind: KindNull}
}

// FromValue converts a Go value into a tree. Maps with string keys become
// mappings with sorted keys, slices and arrays become lists, and everything
// else is kept as a scalar.
func FromValue(v any) *Node {
	switch val := v.(type) {
	case nil:
		return Null()
	case *Node:
		if val == nil {
			return Null()
		}
		return val
	case map[string]any:
		n := NewMap()
		for _, k := range sortedKeys(val) {
			n.Set(k, FromValue(val[k]))
		}
		return n
	case []any:
		n := NewList()
		for _, item := range val {
			n.Append(FromValue(item))
		}
		return n
	case string, bool, int, int64, float64:
		return NewScalar(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromValue(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return NewScalar(v)
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		n := NewMap()
		for _, k := range keys {
			n.Set(k, FromValue(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()))
		}
		return n
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return NewList()
		}
		n := NewList()
		for i := 0; i < rv.Len(); i++ {
			n.Append(FromValue(rv.Index(i).Interface()))
		}
		return n
	default:
		return NewScalar(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Kind returns the variant of the node.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// Value returns the scalar value, or nil for non-scalar nodes.
func (n *Node) Value() any {
	if n.Kind() != KindScalar {
		return nil
	}
	return n.scalar
}

// Len returns the number of entries of a list or mapping.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindList:
		return len(n.list)
	case KindMap:
		return n.fields.Len()
	default:
		return 0
	}
}

// Get returns the child stored under key of a mapping node.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Kind() != KindMap {
		return nil, false
	}
	return n.fields.Get(key)
}

// Set stores child under key, converting a non-mapping node into an empty
// mapping first. Existing keys keep their position.
func (n *Node) Set(key string, child *Node) {
	if n.kind != KindMap {
		*n = *NewMap()
	}
	if child == nil {
		child = Null()
	}
	n.fields.Set(key, child)
}

// Keys returns the keys of a mapping node in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != KindMap {
		return nil
	}
	keys := make([]string, 0, n.fields.Len())
	for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Index returns element i of a list node.
func (n *Node) Index(i int) (*Node, bool) {
	if n.Kind() != KindList || i < 0 || i >= len(n.list) {
		return nil, false
	}
	return n.list[i], true
}

// Items returns the elements of a list node.
func (n *Node) Items() []*Node {
	if n.Kind() != KindList {
		return nil
	}
	return append([]*Node{}, n.list...)
}

// Append adds child to a list node, converting a non-list node into an
// empty list first.
func (n *Node) Append(child *Node) {
	if n.kind != KindList {
		*n = Node{kind: KindList}
	}
	if child == nil {
		child = Null()
	}
	n.list = append(n.list, child)
}

// Lookup follows path through mappings and, with numeric segments, lists.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	cur := n
	for _, seg := range path {
		switch cur.Kind() {
		case KindMap:
			next, ok := cur.Get(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case KindList:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false
			}
			next, ok := cur.Index(i)
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath walks path from n, creating intermediate mappings and replacing any
// non-mapping value found on the way, then stores value at the last segment.
// With appendValue the value is appended to a list at that key, which is
// created on first write.
func (n *Node) SetPath(path []string, value *Node, appendValue bool) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}

	cur := n
	for _, seg := range path[:len(path)-1] {
		next, ok := cur.Get(seg)
		if !ok || next.Kind() != KindMap {
			next = NewMap()
			cur.Set(seg, next)
		}
		cur = next
	}

	last := path[len(path)-1]
	if !appendValue {
		cur.Set(last, value)
		return nil
	}

	list, ok := cur.Get(last)
	if !ok || list.Kind() != KindList {
		list = NewList()
		cur.Set(last, list)
	}
	list.Append(value)
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	switch n.Kind() {
	case KindScalar:
		return NewScalar(n.scalar)
	case KindList:
		out := NewList()
		for _, item := range n.list {
			out.list = append(out.list, item.Clone())
		}
		return out
	case KindMap:
		out := NewMap()
		for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
			out.fields.Set(pair.Key, pair.Value.Clone())
		}
		return out
	default:
		return Null()
	}
}

// Merge returns a copy of n with overlay layered on top. Keys present on both
// sides merge recursively when both are mappings; any other conflict keeps
// n's value. A mapping overlay with numeric keys merges into the matching
// elements of a list.
func (n *Node) Merge(overlay *Node) *Node {
	out := n.Clone()
	mergeInto(out, overlay)
	return out
}

func mergeInto(base, overlay *Node) {
	if overlay.Kind() != KindMap {
		return
	}

	switch base.Kind() {
	case KindMap:
		for pair := overlay.fields.Oldest(); pair != nil; pair = pair.Next() {
			existing, ok := base.Get(pair.Key)
			if !ok {
				base.Set(pair.Key, pair.Value.Clone())
				continue
			}
			mergeInto(existing, pair.Value)
		}
	case KindList:
		for pair := overlay.fields.Oldest(); pair != nil; pair = pair.Next() {
			i, err := strconv.Atoi(pair.Key)
			if err != nil {
				continue
			}
			if item, ok := base.Index(i); ok {
				mergeInto(item, pair.Value)
			}
		}
	}
}

// Interface converts the tree into plain Go values: map[string]any, []any,
// scalars and nil.
func (n *Node) Interface() any {
	switch n.Kind() {
	case KindScalar:
		return n.scalar
	case KindList:
		out := make([]any, len(n.list))
		for i, item := range n.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, n.fields.Len())
		for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = pair.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the tree, keeping mapping keys in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindScalar:
		data, err := json.Marshal(n.scalar)
		if err != nil {
			return fmt.Errorf("failed to encode scalar: %w", err)
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range n.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		first := true
		for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, err := json.Marshal(pair.Key)
			if err != nil {
				return fmt.Errorf("failed to encode key: %w", err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := pair.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes a JSON document into the tree, keeping key order.
// Integral numbers decode as int64, other numbers as float64.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	decoded, err := decodeNode(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err == nil {
		return errors.New("unexpected data after top-level value")
	}
	*n = *decoded
	return nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata tree: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("failed to decode metadata tree: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected key token %v", keyTok)
				}
				child, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				n.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("failed to decode metadata tree: %w", err)
			}
			return n, nil
		case '[':
			n := NewList()
			for dec.More() {
				child, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				n.Append(child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("failed to decode metadata tree: %w", err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return NewScalar(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return NewScalar(f), nil
	case nil:
		return Null(), nil
	default:
		return NewScalar(t), nil
	}
}

// MarshalYAML encodes the tree as a yaml.Node, keeping key order.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.yamlNode()
}

func (n *Node) yamlNode() (*yaml.Node, error) {
	switch n.Kind() {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case KindScalar:
		out := &yaml.Node{}
		if err := out.Encode(n.scalar); err != nil {
			return nil, fmt.Errorf("failed to encode scalar: %w", err)
		}
		return out, nil
	case KindList:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.list {
			child, err := item.yamlNode()
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, child)
		}
		return out, nil
	default:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
			child, err := pair.Value.yamlNode()
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Key}
			out.Content = append(out.Content, key, child)
		}
		return out, nil
	}
}
