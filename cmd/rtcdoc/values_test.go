package main

import (
	"testing"

	"github.com/drpcorg/rtcdoc/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	cases := map[string]any{
		`42`:                int64(42),
		`1.5`:               1.5,
		`"quoted"`:          "quoted",
		`plain words`:       "plain words",
		`true`:              true,
		`null`:              nil,
		`[1, "a"]`:          []any{int64(1), "a"},
		`{"a": {"b": 2}}`:   map[string]any{"a": map[string]any{"b": int64(2)}},
		`{"$counter": 3}`:   value.Counter(3),
		`{"x": 1} trailing`: `{"x": 1} trailing`,
	}
	for in, want := range cases {
		got, err := parseValue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestRenderValue(t *testing.T) {
	out := renderValue(map[string]any{"b": value.Counter(2), "a": []any{int64(1)}})
	assert.Equal(t, "{\n  \"a\": [\n    1\n  ],\n  \"b\": {\n    \"$counter\": 2\n  }\n}", out)
}
