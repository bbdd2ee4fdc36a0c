package coerce

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// dateOnly is the text form a date-only value takes on targets without a
// usable date binding.
const dateOnly = "2006-01-02"

// EncodeValue transcodes a value that has no native equivalent on a SQL
// target into the nearest representable form. Arrays, maps, and raw JSON
// documents become compact JSON text. The boolean reports whether the value
// was rewritten; natively bindable values pass through untouched.
//
// The encoding is lossy-reversible, not bit-identical: DecodeValue restores
// the logical value (JSON numbers come back as float64), never the original
// Go type.
func EncodeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		return string(compact(val)), true
	case []byte:
		// Binary payloads bind natively everywhere.
		return v, false
	case time.Time, string, bool:
		return v, false
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		b, err := json.Marshal(v)
		if err != nil {
			return v, false
		}
		return string(b), true
	default:
		return v, false
	}
}

// EncodeDate renders a date-only value as text for connectors lacking native
// date support.
func EncodeDate(t time.Time) string {
	return t.UTC().Format(dateOnly)
}

// IsDateOnly reports whether a timestamp carries no clock component and can
// be represented as a bare date.
func IsDateOnly(t time.Time) bool {
	u := t.UTC()
	h, m, s := u.Clock()
	return h == 0 && m == 0 && s == 0 && u.Nanosecond() == 0
}

// DecodeValue reverses EncodeValue/EncodeDate on a previously coerced text
// value: JSON arrays and objects decode to []any and map[string]any, and
// date-only text decodes to a midnight UTC time.Time. Values that do not look
// coerced are returned unchanged. Callers opt into decoding explicitly; it is
// never applied to values that were not synced through a coercing adapter.
func DecodeValue(v any) any {
	s, ok := textOf(v)
	if !ok {
		return v
	}

	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
		return v
	}

	if len(trimmed) == len(dateOnly) {
		if t, err := time.Parse(dateOnly, trimmed); err == nil {
			return t
		}
	}

	return v
}

// DecodeRow applies DecodeValue to every column of a row, returning a new
// map. A nil row stays nil.
func DecodeRow(row map[string]any) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = DecodeValue(v)
	}
	return out
}

func textOf(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return "", false
	}
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
