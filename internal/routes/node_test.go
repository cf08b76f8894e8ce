package routes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNode_SetPathCreatesIntermediates(t *testing.T) {
	root := NewMap()
	require.NoError(t, root.SetPath([]string{"tests", "abc", "custom", "owner"}, NewScalar("qa"), false))

	got, ok := root.Lookup("tests", "abc", "custom", "owner")
	require.True(t, ok)
	assert.Equal(t, "qa", got.Value())
}

func TestNode_SetPathOverwritesNonMapping(t *testing.T) {
	root := NewMap()
	require.NoError(t, root.SetPath([]string{"a"}, NewScalar(1), false))
	require.NoError(t, root.SetPath([]string{"a", "b"}, NewScalar(2), false))

	got, ok := root.Lookup("a", "b")
	require.True(t, ok)
	assert.Equal(t, 2, got.Value())
}

func TestNode_SetPathAppend(t *testing.T) {
	root := NewMap()
	for _, v := range []string{"x", "y", "z"} {
		require.NoError(t, root.SetPath([]string{"tags"}, NewScalar(v), true))
	}
	assert.JSONEq(t, `{"tags": ["x", "y", "z"]}`, mustJSON(t, root))

	// A scalar in the way is replaced by a fresh list.
	require.NoError(t, root.SetPath([]string{"owner"}, NewScalar("a"), false))
	require.NoError(t, root.SetPath([]string{"owner"}, NewScalar("b"), true))
	assert.JSONEq(t, `{"tags": ["x", "y", "z"], "owner": ["b"]}`, mustJSON(t, root))
}

func TestNode_SetPathEmpty(t *testing.T) {
	err := NewMap().SetPath(nil, NewScalar(1), false)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestNode_KeyOrder(t *testing.T) {
	root := NewMap()
	root.Set("zeta", NewScalar(1))
	root.Set("alpha", NewScalar(2))
	root.Set("mid", NewScalar(3))
	root.Set("zeta", NewScalar(4))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, root.Keys())
	assert.Equal(t, `{"zeta":4,"alpha":2,"mid":3}`, mustJSON(t, root))
}

func TestFromValue(t *testing.T) {
	type point struct{ X int }

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, `null`},
		{"string", "s", `"s"`},
		{"generic map sorted", map[string]any{"b": 1, "a": []any{true, nil}}, `{"a":[true,null],"b":1}`},
		{"typed map", map[string]int{"y": 2, "x": 1}, `{"x":1,"y":2}`},
		{"typed slice", []string{"a", "b"}, `["a","b"]`},
		{"nil slice", []string(nil), `[]`},
		{"pointer", &[]int{1}, `[1]`},
		{"struct scalar", point{X: 3}, `{"X":3}`},
		{"int keyed map", map[int]string{1: "a"}, `{"1":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustJSON(t, FromValue(tt.in)))
		})
	}
}

func TestNode_Merge(t *testing.T) {
	schema := mustParse(t, `{
		"session": {"total_tests": 2},
		"tests": {"abc": {"relpath": "a.py", "runs": [{"status": "passed"}, {"status": "failed"}]}}
	}`)
	custom := mustParse(t, `{
		"session": {"total_tests": 99, "build": "42"},
		"tests": {"abc": {
			"relpath": {"hijack": true},
			"custom": {"tags": ["slow"]},
			"runs": {"1": {"note": "flaky"}, "7": {"note": "ghost"}, "x": {}}
		}},
		"extra": 1
	}`)

	merged := schema.Merge(custom)

	assert.JSONEq(t, `{
		"session": {"total_tests": 2, "build": "42"},
		"tests": {"abc": {
			"relpath": "a.py",
			"runs": [{"status": "passed"}, {"status": "failed", "note": "flaky"}],
			"custom": {"tags": ["slow"]}
		}},
		"extra": 1
	}`, mustJSON(t, merged))

	// Merge does not mutate its inputs.
	assert.JSONEq(t, `{
		"session": {"total_tests": 2},
		"tests": {"abc": {"relpath": "a.py", "runs": [{"status": "passed"}, {"status": "failed"}]}}
	}`, mustJSON(t, schema))
}

func TestNode_UnmarshalJSON(t *testing.T) {
	n := mustParse(t, `{"b": 1, "a": 1.5, "c": [null, "x", false], "d": {}}`)

	assert.Equal(t, []string{"b", "a", "c", "d"}, n.Keys())
	assert.Equal(t, map[string]any{
		"b": int64(1),
		"a": 1.5,
		"c": []any{nil, "x", false},
		"d": map[string]any{},
	}, n.Interface())

	var bad Node
	assert.Error(t, json.Unmarshal([]byte(`{"a": `), &bad))
	assert.Error(t, bad.UnmarshalJSON([]byte(`{} {}`)))
}

func TestNode_MarshalYAML(t *testing.T) {
	root := NewMap()
	root.Set("z", NewScalar("last"))
	root.Set("a", NewList(NewScalar(1), Null()))

	out, err := yaml.Marshal(root)
	require.NoError(t, err)
	assert.Equal(t, "z: last\na:\n    - 1\n    - null\n", string(out))
}

func TestNode_Accessors(t *testing.T) {
	list := NewList(NewScalar("a"))
	list.Append(NewScalar("b"))
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, KindList, list.Kind())

	item, ok := list.Index(1)
	require.True(t, ok)
	assert.Equal(t, "b", item.Value())
	_, ok = list.Index(2)
	assert.False(t, ok)

	_, ok = list.Get("a")
	assert.False(t, ok, "Get on a list")
	assert.Nil(t, NewScalar(1).Keys())
	assert.Equal(t, "map", KindMap.String())

	var nilNode *Node
	assert.Equal(t, KindNull, nilNode.Kind())
}

func mustJSON(t *testing.T, n *Node) string {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return string(data)
}

func mustParse(t *testing.T, s string) *Node {
	t.Helper()
	var n Node
	require.NoError(t, json.Unmarshal([]byte(s), &n))
	return &n
}
