// Package param defines the typed values a tweakable parameter can hold.
//
// A Value is a closed variant over int, float and bool. Its kind is fixed
// when the parameter is registered; every later write is coerced into it.
package param

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrCoercion is returned when raw input cannot be converted to a kind.
	ErrCoercion = errors.New("cannot coerce value")
	// ErrUnsupportedJSON is returned when a JSON token is not a number or bool.
	ErrUnsupportedJSON = errors.New("unsupported JSON type for value")
)

// Kind is the concrete type of a parameter.
type Kind uint8

const (
	Invalid Kind = iota
	Int
	Float
	Bool
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "invalid"
	}
}

// ParseKind maps a kind name as typed on the command line to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return Int, nil
	case "float", "double":
		return Float, nil
	case "bool", "boolean":
		return Bool, nil
	}
	return Invalid, fmt.Errorf("unknown kind %q (want int, float or bool)", s)
}

// Values is an insertion-ordered name to value mapping. It encodes as a JSON
// object with keys in insertion order.
type Values = orderedmap.OrderedMap[string, Value]

// NewValues returns an empty Values.
func NewValues() *Values {
	return orderedmap.New[string, Value]()
}

// Value is a parameter value. The zero Value is invalid and stands for
// "absent", e.g. a parameter registered without an increment.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
}

func IntValue(i int64) Value     { return Value{kind: Int, i: i} }
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != Invalid }

// IsZero reports whether v is absent. It lets encoding/json drop absent
// values under the omitzero option.
func (v Value) IsZero() bool { return v.kind == Invalid }

func (v Value) Int() int64 { return v.i }

// Float returns the value as a float64. Ints widen.
func (v Value) Float() float64 {
	if v.kind == Int {
		return float64(v.i)
	}
	return v.f
}

func (v Value) Bool() bool { return v.b }

// Any returns the payload as int64, float64, bool, or nil when invalid.
func (v Value) Any() any {
	switch v.kind {
	case Int:
		return v.i
	case Float:
		return v.f
	case Bool:
		return v.b
	}
	return nil
}

// Equal reports whether v and o have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Int:
		return v.i == o.i
	case Float:
		return v.f == o.f
	case Bool:
		return v.b == o.b
	}
	return true
}

// String renders v so that Coerce(v.String()) yields v again. Bools render
// as True/False.
func (v Value) String() string {
	switch v.kind {
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Bool:
		if v.b {
			return "True"
		}
		return "False"
	}
	return "<invalid>"
}

// Coerce converts raw input into v's kind.
//
// A bool is true only for the exact input "True". Any other input,
// including "true", yields false and never fails.
func (v Value) Coerce(raw string) (Value, error) {
	switch v.kind {
	case Int:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int", ErrCoercion, raw)
		}
		return IntValue(i), nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrCoercion, raw)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a finite float", ErrCoercion, raw)
		}
		return FloatValue(f), nil
	case Bool:
		return BoolValue(raw == "True"), nil
	}
	return Value{}, fmt.Errorf("%w: no kind to coerce %q into", ErrCoercion, raw)
}

// Parse strictly parses raw as kind k. Unlike Coerce it rejects unrecognised
// bool spellings.
func Parse(k Kind, raw string) (Value, error) {
	if k != Bool {
		return Value{kind: k}.Coerce(raw)
	}
	s := strings.TrimSpace(raw)
	switch s {
	case "True":
		return BoolValue(true), nil
	case "False":
		return BoolValue(false), nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q is not a bool", ErrCoercion, raw)
	}
	return BoolValue(b), nil
}

// As converts v to kind k. Numeric kinds convert into each other as long as
// no precision is lost.
func (v Value) As(k Kind) (Value, error) {
	if v.kind == k {
		return v, nil
	}
	switch {
	case v.kind == Int && k == Float:
		return FloatValue(float64(v.i)), nil
	case v.kind == Float && k == Int && v.f == math.Trunc(v.f) &&
		v.f >= math.MinInt64 && v.f < math.MaxInt64:
		return IntValue(int64(v.f)), nil
	}
	return Value{}, fmt.Errorf("%w: %s %s as %s", ErrCoercion, v.kind, v, k)
}

// Step returns v moved by one increment in the direction of dir. A bool
// toggles regardless of the increment.
func (v Value) Step(increment Value, dir int) (Value, error) {
	if v.kind == Bool {
		return BoolValue(!v.b), nil
	}
	inc, err := increment.As(v.kind)
	if err != nil {
		return v, err
	}
	if dir < 0 {
		inc.i, inc.f = -inc.i, -inc.f
	}
	switch v.kind {
	case Int:
		return IntValue(v.i + inc.i), nil
	case Float:
		return FloatValue(v.f + inc.f), nil
	}
	return v, fmt.Errorf("%w: cannot step %s", ErrCoercion, v.kind)
}

// MarshalJSON encodes ints as JSON integers and floats with a fraction or
// exponent so the kind survives decoding.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Int:
		return strconv.AppendInt(nil, v.i, 10), nil
	case Float:
		b, err := json.Marshal(v.f)
		if err != nil {
			return nil, err
		}
		if !bytes.ContainsAny(b, ".eE") {
			b = append(b, ".0"...)
		}
		return b, nil
	case Bool:
		return strconv.AppendBool(nil, v.b), nil
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*v = BoolValue(true)
		return nil
	case bytes.Equal(data, []byte("false")):
		*v = BoolValue(false)
		return nil
	case len(data) == 0 || !(data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		return fmt.Errorf("%w: %s", ErrUnsupportedJSON, data)
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedJSON, data)
	}
	if !bytes.ContainsAny(data, ".eE") {
		if i, err := n.Int64(); err == nil {
			*v = IntValue(i)
			return nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedJSON, data)
	}
	*v = FloatValue(f)
	return nil
}
