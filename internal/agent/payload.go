package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the three shapes a parsed agent result can take.
type Kind int

const (
	// NoPayload means there is no usable data (failed envelope, missing or
	// null result).
	NoPayload Kind = iota

	// TextOnly means the result was free text (or a JSON value that is not
	// an object).
	TextOnly

	// Structured means the result decoded to a JSON object.
	Structured
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case TextOnly:
		return "text"
	case Structured:
		return "structured"
	default:
		return "none"
	}
}

// Payload is the parsed form of an agent result.
type Payload struct {
	kind   Kind
	text   string
	fields map[string]any
}

// Text builds a TextOnly payload.
func Text(text string) Payload {
	return Payload{kind: TextOnly, text: text}
}

// Fields builds a Structured payload. A nil map yields an empty object.
func Fields(fields map[string]any) Payload {
	if fields == nil {
		fields = map[string]any{}
	}
	return Payload{kind: Structured, fields: fields}
}

// Kind returns the payload kind.
func (p Payload) Kind() Kind { return p.kind }

// Present reports whether the payload carries any data.
func (p Payload) Present() bool { return p.kind != NoPayload }

// Text returns the free text of a TextOnly payload.
func (p Payload) Text() string { return p.text }

// Fields returns the decoded object of a Structured payload.
func (p Payload) Fields() map[string]any { return p.fields }

// Message returns the user-visible message: the text itself for TextOnly, the
// "message" field for Structured.
func (p Payload) Message() string {
	switch p.kind {
	case TextOnly:
		return p.text
	case Structured:
		s, _ := p.String("message")
		return s
	default:
		return ""
	}
}

// String returns a string field. Only Structured payloads have fields.
func (p Payload) String(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// NonEmpty returns a string field when it is present and not blank.
func (p Payload) NonEmpty(key string) (string, bool) {
	s, ok := p.String(key)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// StringSlice returns a list field, keeping only its string entries.
func (p Payload) StringSlice(key string) ([]string, bool) {
	list, ok := p.List(key)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// Int returns an integral number field. Numeric strings are accepted.
func (p Payload) Int(key string) (int, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return 0, false
	}
	return ToInt(v)
}

// Bool returns a boolean field.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Object returns a nested object field.
func (p Payload) Object(key string) (map[string]any, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// List returns a list field.
func (p Payload) List(key string) ([]any, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}

func (p Payload) lookup(key string) (any, bool) {
	if p.kind != Structured || p.fields == nil {
		return nil, false
	}
	v, ok := p.fields[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Parse normalizes an agent result into a Payload. It never fails: decode
// errors degrade to TextOnly so no agent text is lost.
//
// Only JSON objects become Structured. A result that decodes to any other
// JSON value, directly or inside a JSON-encoded string ("[1,2]", "42"), is
// kept as TextOnly holding the undecoded text.
func Parse(r *Result) Payload {
	if r == nil || !r.Success || r.Response == nil {
		return Payload{}
	}

	raw := bytes.TrimSpace(r.Response.Result)
	if len(raw) == 0 {
		return Payload{}
	}

	value, err := decode(raw)
	if err != nil {
		return Text(string(raw))
	}

	switch v := value.(type) {
	case nil:
		return Payload{}
	case map[string]any:
		return Fields(v)
	case string:
		return parseString(v)
	default:
		return Text(string(raw))
	}
}

// parseString handles a result that arrived as a JSON-encoded string.
func parseString(s string) Payload {
	inner, err := decode([]byte(s))
	if err != nil {
		return Text(s)
	}
	switch v := inner.(type) {
	case nil:
		return Payload{}
	case map[string]any:
		return Fields(v)
	default:
		return Text(s)
	}
}

func decode(data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, errInvalidJSON
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var errInvalidJSON = errors.New("invalid JSON")

// ToInt converts a decoded JSON number (or numeric string) to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
		return 0, false
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
		return 0, false
	default:
		return 0, false
	}
}
