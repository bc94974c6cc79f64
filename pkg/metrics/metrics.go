// Package metrics models the schema-less result payload a test body
// reports: an ordered set of named values, each a numeric scalar, a
// string, or a fixed-length numeric array. Payloads round-trip through
// a line-based text encoding so stored results stay diffable and
// precision-exact.
package metrics

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindArray
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the payload types a metric may hold.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	arr  []float64
}

// IntValue wraps an integer scalar.
func IntValue(v int64) Value {
	return Value{kind: KindInt, i: v}
}

// FloatValue wraps a floating-point scalar.
func FloatValue(v float64) Value {
	return Value{kind: KindFloat, f: v}
}

// StringValue wraps a string scalar.
func StringValue(v string) Value {
	return Value{kind: KindString, s: v}
}

// ArrayValue wraps a fixed-length numeric array. The slice is copied.
func ArrayValue(v []float64) Value {
	arr := make([]float64, len(v))
	copy(arr, v)

	return Value{kind: KindArray, arr: arr}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// AsFloat returns the value as a float64 when it is a numeric scalar.
// Strings and arrays report false.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Int returns the integer scalar. Valid only when Kind is KindInt.
func (v Value) Int() int64 {
	return v.i
}

// Float returns the float scalar. Valid only when Kind is KindFloat.
func (v Value) Float() float64 {
	return v.f
}

// Str returns the string scalar. Valid only when Kind is KindString.
func (v Value) Str() string {
	return v.s
}

// Array returns a copy of the numeric array. Valid only when Kind is
// KindArray.
func (v Value) Array() []float64 {
	arr := make([]float64, len(v.arr))
	copy(arr, v.arr)

	return arr
}

// keyPattern is the accepted format for metric keys.
var keyPattern = regexp.MustCompile(`^[a-zA-Z]\w*$`)

// floatFormat keeps full float64 round-trip precision in the text form.
const floatFormat = "% .17e"

// Metrics is an insertion-ordered mapping from metric name to Value.
type Metrics struct {
	keys   []string
	values map[string]Value
}

// New returns an empty Metrics payload.
func New() *Metrics {
	return &Metrics{
		values: make(map[string]Value, 8),
	}
}

// Set stores a value under key, preserving first-insertion order.
// Keys must start with a letter and contain only word characters.
func (m *Metrics) Set(key string, value Value) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid metric key %q", key)
	}

	if value.kind == KindString &&
		strings.ContainsAny(value.s, "\n\r") {
		return fmt.Errorf("metric %q: multi-line strings are not supported", key)
	}

	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}

	m.values[key] = value

	return nil
}

// Get returns the value stored under key.
func (m *Metrics) Get(key string) (Value, bool) {
	v, ok := m.values[key]

	return v, ok
}

// Keys returns the metric names in insertion order.
func (m *Metrics) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)

	return keys
}

// Len returns the number of stored metrics.
func (m *Metrics) Len() int {
	return len(m.keys)
}

// Encode renders the payload in the line-based "key: value" text form.
func (m *Metrics) Encode() []byte {
	var b strings.Builder

	for _, key := range m.keys {
		v := m.values[key]

		b.WriteString(key)
		b.WriteString(": ")

		switch v.kind {
		case KindInt:
			b.WriteString(strconv.FormatInt(v.i, 10))
		case KindFloat:
			fmt.Fprintf(&b, floatFormat, v.f)
		case KindString:
			b.WriteByte('"')
			b.WriteString(v.s)
			b.WriteByte('"')
		case KindArray:
			b.WriteByte('[')

			for i, x := range v.arr {
				if i > 0 {
					b.WriteString(", ")
				}

				fmt.Fprintf(&b, floatFormat, x)
			}

			b.WriteByte(']')
		}

		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// Decode parses a text-form payload. Malformed lines are skipped and
// counted in skipped; decoding itself never fails, callers decide what
// an empty payload means.
func Decode(data []byte) (m *Metrics, skipped int) {
	m = New()

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			skipped++

			continue
		}

		key := line[:idx]
		if !keyPattern.MatchString(key) {
			skipped++

			continue
		}

		raw := strings.TrimSpace(line[idx+1:])

		value, ok := parseValue(raw)
		if !ok {
			skipped++

			continue
		}

		if err := m.Set(key, value); err != nil {
			skipped++
		}
	}

	return m, skipped
}

// parseValue interprets the textual value forms: quoted string, bracketed
// numeric array, float (contains a dot or exponent), or int.
func parseValue(raw string) (Value, bool) {
	switch {
	case strings.HasPrefix(raw, "["):
		if !strings.HasSuffix(raw, "]") {
			return Value{}, false
		}

		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return ArrayValue(nil), true
		}

		parts := strings.Split(inner, ",")
		arr := make([]float64, 0, len(parts))

		for _, p := range parts {
			x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Value{}, false
			}

			arr = append(arr, x)
		}

		return ArrayValue(arr), true

	case strings.HasPrefix(raw, `"`):
		if len(raw) < 2 || !strings.HasSuffix(raw, `"`) {
			return Value{}, false
		}

		return StringValue(raw[1 : len(raw)-1]), true

	case strings.ContainsAny(raw, ".eE") || raw == "inf" || raw == "-inf" ||
		raw == "nan":
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, false
		}

		return FloatValue(x), true

	default:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, false
		}

		return IntValue(i), true
	}
}

// IsFinite reports whether x is a usable score (not NaN or ±Inf).
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
