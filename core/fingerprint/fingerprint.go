package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"doltsync/core/utils"
)

// nullMarker stands in for SQL NULL. It cannot collide with a real text value
// because length prefixing keeps it distinct from the literal string.
const nullMarker = "\x00"

// dateOnly is the canonical layout for values carrying no clock component.
const dateOnly = "2006-01-02"

// textLayouts are the datetime text forms the connected engines emit.
// Fractional seconds are optional in every layout.
var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	dateOnly,
}

// Canonical reduces a value to its canonical text form. Logically equal
// values must map to the same string regardless of which driver produced
// them: integers of any width, numeric text, []byte column payloads, and the
// various datetime encodings all collapse to one representation.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return nullMarker
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return canonicalTime(val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return canonicalFloat(float64(val))
	case float64:
		return canonicalFloat(val)
	case []byte:
		return canonicalString(string(val))
	case string:
		return canonicalString(val)
	default:
		return utils.ToString(v)
	}
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v", f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func canonicalTime(t time.Time) string {
	u := t.UTC()
	h, m, s := u.Clock()
	if h == 0 && m == 0 && s == 0 && u.Nanosecond() == 0 {
		return u.Format(dateOnly)
	}
	return u.Format(time.RFC3339Nano)
}

// canonicalString normalizes numeric and datetime text to the same form the
// typed values canonicalize to, so "1.50" matches 1.5 and
// "2023-01-02 00:00:00" matches a DATE of the same day.
func canonicalString(s string) string {
	if s == "" {
		return s
	}

	if isNumericText(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return canonicalFloat(f)
		}
	}

	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return canonicalTime(t)
		}
	}

	return s
}

// isNumericText keeps ParseFloat from swallowing words like "Inf" or "NaN"
// that are legitimate text values.
func isNumericText(s string) bool {
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == 'e' || r == 'E':
		case (r == '+' || r == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return strings.ContainsFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
}

// Fingerprint returns the deterministic identity hash of a row: a sha256 over
// the canonical forms of its primary key values in pkCols order, hex encoded.
// The same logical row yields the same fingerprint on every system.
func Fingerprint(row map[string]any, pkCols []string) string {
	return digest(row, pkCols)
}

// RowDigest hashes the canonical forms of all listed columns. Two rows with
// equal digests carry equal logical values for those columns; snapshot diffs
// and verification use it to detect modified rows without per-column loops.
func RowDigest(row map[string]any, cols []string) string {
	return digest(row, cols)
}

func digest(row map[string]any, cols []string) string {
	h := sha256.New()
	for _, col := range cols {
		v := Canonical(Value(row, col))
		// Length prefixing keeps value boundaries unambiguous.
		fmt.Fprintf(h, "%d:%s;", len(v), v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Value looks up a column in a scanned row, tolerating driver case
// differences in column names.
func Value(row map[string]any, col string) any {
	if v, ok := row[col]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, col) {
			return v
		}
	}
	return nil
}
