package agent

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultWith(success bool, raw string) *Result {
	r := &Result{Success: success}
	if raw != "" {
		r.Response = &Response{Result: json.RawMessage(raw)}
	}
	return r
}

func TestParse_FailedEnvelopeIsNoPayload(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
	}{
		{"nil result", nil},
		{"success false with object", resultWith(false, `{"draft_body":"hi"}`)},
		{"success false with error", &Result{Success: false, Error: "boom", Response: &Response{Message: "m"}}},
		{"success without response", &Result{Success: true}},
		{"success with empty result", resultWith(true, "")},
		{"success with null result", resultWith(true, "null")},
		{"success with json string null", resultWith(true, `"null"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.result)
			assert.Equal(t, NoPayload, p.Kind())
			assert.False(t, p.Present())
			assert.Empty(t, p.Message())
		})
	}
}

func TestParse_JSONStringObject(t *testing.T) {
	p := Parse(resultWith(true, `"{\"draft_body\":\"hi\"}"`))

	require.Equal(t, Structured, p.Kind())
	if diff := cmp.Diff(map[string]any{"draft_body": "hi"}, p.Fields()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	body, ok := p.String("draft_body")
	assert.True(t, ok)
	assert.Equal(t, "hi", body)
}

func TestParse_PlainTextString(t *testing.T) {
	p := Parse(resultWith(true, `"plain text"`))

	require.Equal(t, TextOnly, p.Kind())
	assert.Equal(t, "plain text", p.Text())
	assert.Equal(t, "plain text", p.Message())

	_, ok := p.String("message")
	assert.False(t, ok, "text payloads have no fields")
}

func TestParse_StringScalarsStayText(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{`"42"`, "42"},
		{`"true"`, "true"},
		{`"[1,2]"`, "[1,2]"},
		{`"{not json"`, "{not json"},
		{`"{\"a\":1} trailing"`, `{"a":1} trailing`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := Parse(resultWith(true, tt.raw))
			assert.Equal(t, TextOnly, p.Kind())
			assert.Equal(t, tt.expected, p.Text())
		})
	}
}

func TestParse_StructuredResult(t *testing.T) {
	p := Parse(resultWith(true, `{"message":"done","suggested_actions":["a",2,"b"],"days_waiting":3,"nested":{"x":true}}`))

	require.Equal(t, Structured, p.Kind())
	assert.Equal(t, "done", p.Message())

	actions, ok := p.StringSlice("suggested_actions")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, actions)

	days, ok := p.Int("days_waiting")
	assert.True(t, ok)
	assert.Equal(t, 3, days)

	nested, ok := p.Object("nested")
	assert.True(t, ok)
	assert.Equal(t, true, nested["x"])

	_, ok = p.List("missing")
	assert.False(t, ok)
}

func TestParse_StructuredNonObjectIsText(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{`[1, 2]`, "[1, 2]"},
		{`12`, "12"},
		{`false`, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := Parse(resultWith(true, tt.raw))
			assert.Equal(t, TextOnly, p.Kind())
			assert.Equal(t, tt.expected, p.Text())
		})
	}
}

func TestPayload_NonEmpty(t *testing.T) {
	p := Fields(map[string]any{"a": "  ", "b": "x", "c": 1})

	_, ok := p.NonEmpty("a")
	assert.False(t, ok)

	v, ok := p.NonEmpty("b")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = p.NonEmpty("c")
	assert.False(t, ok)
}

func TestPayload_NullFieldIsAbsent(t *testing.T) {
	p := Parse(resultWith(true, `{"subject":null}`))

	_, ok := p.String("subject")
	assert.False(t, ok)
}

func TestToInt(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected int
		ok       bool
	}{
		{"json integer", json.Number("7"), 7, true},
		{"json float", json.Number("2.9"), 2, true},
		{"float64", float64(4), 4, true},
		{"int", 5, 5, true},
		{"numeric string", " 12 ", 12, true},
		{"text", "soon", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "none", NoPayload.String())
	assert.Equal(t, "text", TextOnly.String())
	assert.Equal(t, "structured", Structured.String())
}
