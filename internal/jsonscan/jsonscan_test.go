package jsonscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpan(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		ok       bool
	}{
		{name: "simple object", text: `var a = {"x": 1};`, expected: `{"x": 1}`, ok: true},
		{name: "nested", text: `x={"a":{"b":[1,2,{"c":3}]}} rest`, expected: `{"a":{"b":[1,2,{"c":3}]}}`, ok: true},
		{name: "braces inside strings", text: `{"t": "a } b { c"}`, expected: `{"t": "a } b { c"}`, ok: true},
		{name: "escaped quote", text: `{"t": "say \"}\" now"} tail`, expected: `{"t": "say \"}\" now"}`, ok: true},
		{name: "array first", text: `data: [1, [2, 3]]`, expected: `[1, [2, 3]]`, ok: true},
		{name: "unterminated", text: `{"a": [1, 2}`, ok: false},
		{name: "no value", text: `nothing here`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := Span(tt.text, 0)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, span)
		})
	}
}

func TestExtract(t *testing.T) {
	script := `window.__INIT_DATA = {"globalData": {"skuModel": {"skuInfoMap": {"Red>M": {"price": "12.50"}}}}}; var other = 1;`

	result, ok := Extract(script, "window.__INIT_DATA =")
	require.True(t, ok)
	skus := result.Get("globalData.skuModel.skuInfoMap").Map()
	require.Contains(t, skus, "Red>M")
	assert.Equal(t, "12.50", skus["Red>M"].Get("price").String())
}

func TestExtract_SkipsInvalidCandidate(t *testing.T) {
	text := `"skuMap": {bad json}, "skuMap": {"a": 1}`

	result, ok := Extract(text, `"skuMap":`)
	require.True(t, ok)
	assert.Equal(t, int64(1), result.Get("a").Int())
}

func TestExtract_ValueMustFollowMarker(t *testing.T) {
	text := `{"imageList": null, "x": {"a": 1}}`

	_, ok := Extract(text, `"imageList":`)
	assert.False(t, ok)

	result, ok := Extract(`{"imageList": null, "imageList":`+"\n\t"+`["a.jpg"]}`, `"imageList":`)
	require.True(t, ok)
	assert.Equal(t, "a.jpg", result.Array()[0].String())
}

func TestExtract_MissingMarker(t *testing.T) {
	_, ok := Extract(`{"a": 1}`, "nope")
	assert.False(t, ok)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected string
	}{
		{name: "fenced", reply: "```json\n{\"name\": \"가방\"}\n```", expected: `{"name": "가방"}`},
		{name: "trailing commas", reply: `{"a": [1, 2,], "b": 3,}`, expected: `{"a": [1, 2], "b": 3}`},
		{name: "prose around", reply: `Sure! Here it is: ["x", "y"] Hope that helps.`, expected: `["x", "y"]`},
		{name: "plain", reply: `  {"ok": true}  `, expected: `{"ok": true}`},
		{name: "bracketed note before object", reply: "Note [1]: here it is\n{\"name\": \"Lamp\"}", expected: `{"name": "Lamp"}`},
		{name: "comma inside string kept", reply: `{"name": "Box, ]"}`, expected: `{"name": "Box, ]"}`},
		{name: "no json", reply: "  sorry  ", expected: "sorry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.reply))
		})
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected []string
	}{
		{name: "prose brackets are not json", reply: `See {this}: {"a": 1}`, expected: []string{`{"a": 1}`}},
		{name: "valid note kept in order", reply: `Note [1]: {"a": [2]}`, expected: []string{`[1]`, `{"a": [2]}`}},
		{name: "nested values not repeated", reply: `{"a": {"b": [1]}} and ["x"]`, expected: []string{`{"a": {"b": [1]}}`, `["x"]`}},
		{name: "trailing commas repaired", reply: "```\n[\"a\", \"b\",]\n```", expected: []string{`["a", "b"]`}},
		{name: "nothing", reply: `plain text`, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Candidates(tt.reply))
		})
	}
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "object and array", in: `{"a": [1, 2,], "b": 3,}`, expected: `{"a": [1, 2], "b": 3}`},
		{name: "whitespace before bracket", in: "[1,\n  ]", expected: "[1\n  ]"},
		{name: "inside string", in: `{"name": "Box, ]", "t": "a,}"}`, expected: `{"name": "Box, ]", "t": "a,}"}`},
		{name: "escaped quote", in: `{"q": "say \", ]",}`, expected: `{"q": "say \", ]"}`},
		{name: "regular commas", in: `[1, 2, 3]`, expected: `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripTrailingCommas(tt.in))
		})
	}
}
