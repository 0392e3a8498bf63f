// Package wire converts between semantic attribute values and the command
// tokens a SCPI-like instrument understands. All helpers are stateless;
// per-family behavior (enum tables, out-of-range markers, range sentinels)
// is table-driven and supplied by the driver.
package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/davmor83/labrig-core/internal/instrument"
)

// Extended numeric sentinels. A semantic value equal to one of these
// strings (case-insensitive) is emitted verbatim instead of a decimal
// literal, letting the instrument substitute its own limit.
const (
	Min = "MIN"
	Max = "MAX"
)

// FormatBool encodes a boolean as the 1/0 wire convention.
func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ParseBool decodes a boolean response. Accepts integer-parseable strings
// and the ON/OFF mnemonics, case-insensitive, with surrounding quotes and
// whitespace stripped.
func ParseBool(token string) (bool, error) {
	t := strings.ToUpper(strings.Trim(strings.TrimSpace(token), `"`))
	switch t {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return false, fmt.Errorf("%w: boolean response %q", instrument.ErrProtocol, token)
	}
	return n != 0, nil
}

// Number is a numeric attribute value that may be a float or one of the
// MIN/MAX sentinels.
type Number struct {
	Value    float64
	Sentinel string
}

// Float wraps a plain numeric value.
func Float(v float64) Number {
	return Number{Value: v}
}

// NumberFrom accepts the value forms a numeric setter sees: float64 (and
// the common integer widths) or a MIN/MAX sentinel string.
func NumberFrom(v any) (Number, error) {
	switch n := v.(type) {
	case Number:
		return n, nil
	case float64:
		return Number{Value: n}, nil
	case float32:
		return Number{Value: float64(n)}, nil
	case int:
		return Number{Value: float64(n)}, nil
	case int64:
		return Number{Value: float64(n)}, nil
	case string:
		s := strings.ToUpper(strings.TrimSpace(n))
		if s == Min || s == Max {
			return Number{Sentinel: s}, nil
		}
		return Number{}, fmt.Errorf("%w: numeric value %q", instrument.ErrValueNotSupported, n)
	default:
		return Number{}, fmt.Errorf("%w: numeric value of type %T", instrument.ErrValueNotSupported, v)
	}
}

// Token renders the wire form: the sentinel mnemonic unchanged, otherwise a
// decimal floating-point literal.
func (n Number) Token() string {
	if n.Sentinel != "" {
		return n.Sentinel
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// ParseFloat decodes a numeric response. A response ending in one of the
// device-specific out-of-range suffixes decodes to +Inf.
func ParseFloat(token string, outOfRange ...string) (float64, error) {
	t := strings.Trim(strings.TrimSpace(token), `"`)
	for _, suffix := range outOfRange {
		if suffix != "" && strings.HasSuffix(t, suffix) {
			return math.Inf(1), nil
		}
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: numeric response %q", instrument.ErrProtocol, token)
	}
	return v, nil
}

// Table is a bidirectional mapping between semantic enum values and wire
// mnemonics for one attribute family.
type Table struct {
	toWire   map[string]string
	fromWire map[string]string
	order    []string
}

// NewTable builds a table from semantic → mnemonic pairs. Iteration order
// of Values follows the pairs slice. Mnemonics are matched
// case-insensitively on decode but emitted exactly as declared.
func NewTable(pairs [][2]string) Table {
	t := Table{
		toWire:   make(map[string]string, len(pairs)),
		fromWire: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		t.toWire[p[0]] = p[1]
		t.fromWire[strings.ToUpper(p[1])] = p[0]
		t.order = append(t.order, p[0])
	}
	return t
}

// Values returns the semantic values in declaration order.
func (t Table) Values() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Contains reports whether a semantic value is in the table.
func (t Table) Contains(semantic string) bool {
	_, ok := t.toWire[semantic]
	return ok
}

// ToWire maps a semantic value to its mnemonic. An unknown value fails
// with ErrValueNotSupported: the caller asked for something this
// instrument family cannot express.
func (t Table) ToWire(semantic string) (string, error) {
	m, ok := t.toWire[semantic]
	if !ok {
		return "", fmt.Errorf("%w: %q not in %v", instrument.ErrValueNotSupported, semantic, t.order)
	}
	return m, nil
}

// FromWire maps a mnemonic back to its semantic value. An unknown token
// fails with ErrProtocol: the instrument answered with something the
// driver does not understand, which must surface rather than coerce.
func (t Table) FromWire(token string) (string, error) {
	s, ok := t.fromWire[strings.ToUpper(strings.Trim(strings.TrimSpace(token), `"`))]
	if !ok {
		return "", fmt.Errorf("%w: unexpected mnemonic %q", instrument.ErrProtocol, token)
	}
	return s, nil
}

// Default magnitude reported by SCPI instruments for measurements outside
// the representable range.
const defaultRangeSentinel = 9.9e37

// Sentinels holds the per-family out-of-range magnitudes for measurement
// reads.
type Sentinels struct {
	Over  float64
	Under float64
}

// DefaultSentinels returns the ±9.9e37 convention.
func DefaultSentinels() Sentinels {
	return Sentinels{Over: defaultRangeSentinel, Under: -defaultRangeSentinel}
}

// IsOverRange reports whether a measured value is at or beyond the
// positive sentinel.
func (s Sentinels) IsOverRange(v float64) bool {
	return v >= s.Over || math.IsInf(v, 1)
}

// IsUnderRange reports whether a measured value is at or beyond the
// negative sentinel.
func (s Sentinels) IsUnderRange(v float64) bool {
	return v <= s.Under || math.IsInf(v, -1)
}

// IsOutOfRange reports whether a measured value is outside the
// representable range in either direction.
func (s Sentinels) IsOutOfRange(v float64) bool {
	return s.IsOverRange(v) || s.IsUnderRange(v)
}
