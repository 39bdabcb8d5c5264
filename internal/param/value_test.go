package param

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		target  Value
		raw     string
		want    Value
		wantErr bool
	}{
		{"int", IntValue(0), "42", IntValue(42), false},
		{"int negative with spaces", IntValue(0), " -7 ", IntValue(-7), false},
		{"int rejects float", IntValue(0), "3.5", Value{}, true},
		{"int rejects text", IntValue(0), "abc", Value{}, true},
		{"float", FloatValue(0), "0.25", FloatValue(0.25), false},
		{"float from int text", FloatValue(0), "3", FloatValue(3), false},
		{"float exponent", FloatValue(0), "1e3", FloatValue(1000), false},
		{"float rejects text", FloatValue(0), "fast", Value{}, true},
		{"float rejects nan", FloatValue(0), "nan", Value{}, true},
		{"float rejects inf", FloatValue(0), "inf", Value{}, true},
		{"bool True", BoolValue(false), "True", BoolValue(true), false},
		{"bool lowercase true", BoolValue(true), "true", BoolValue(false), false},
		{"bool empty", BoolValue(true), "", BoolValue(false), false},
		{"bool False", BoolValue(true), "False", BoolValue(false), false},
		{"invalid target", Value{}, "1", Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.target.Coerce(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Fatalf("Coerce(%q) error = %v, want ErrCoercion", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%q) unexpected error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Coerce(%q) = %v (%s), want %v (%s)", tt.raw, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestStringRoundTripsThroughCoerce(t *testing.T) {
	for _, v := range []Value{IntValue(-12), FloatValue(0.1), FloatValue(2), FloatValue(1e-9), BoolValue(true), BoolValue(false)} {
		got, err := v.Coerce(v.String())
		if err != nil {
			t.Fatalf("Coerce(%q): %v", v.String(), err)
		}
		if !got.Equal(v) {
			t.Errorf("round trip of %v gave %v", v, got)
		}
	}
}

func TestParseStrictBool(t *testing.T) {
	for raw, want := range map[string]bool{"True": true, "true": true, "1": true, "False": false, "false": false, "0": false} {
		v, err := Parse(Bool, raw)
		if err != nil {
			t.Fatalf("Parse(Bool, %q): %v", raw, err)
		}
		if v.Bool() != want {
			t.Errorf("Parse(Bool, %q) = %v, want %v", raw, v.Bool(), want)
		}
	}
	if _, err := Parse(Bool, "yes"); !errors.Is(err, ErrCoercion) {
		t.Errorf("Parse(Bool, yes) error = %v, want ErrCoercion", err)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"int": Int, "float": Float, "bool": Bool, "Float": Float} {
		k, err := ParseKind(in)
		if err != nil || k != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, k, err, want)
		}
	}
	if _, err := ParseKind("string"); err == nil {
		t.Error("ParseKind(string) should fail")
	}
}

func TestStep(t *testing.T) {
	up, err := IntValue(3).Step(IntValue(2), 1)
	if err != nil || !up.Equal(IntValue(5)) {
		t.Errorf("int step up = %v, %v", up, err)
	}
	down, err := FloatValue(1).Step(FloatValue(0.25), -1)
	if err != nil || !down.Equal(FloatValue(0.75)) {
		t.Errorf("float step down = %v, %v", down, err)
	}
	widened, err := FloatValue(1).Step(IntValue(1), 1)
	if err != nil || !widened.Equal(FloatValue(2)) {
		t.Errorf("float step by int = %v, %v", widened, err)
	}
	toggled, err := BoolValue(false).Step(Value{}, 1)
	if err != nil || !toggled.Bool() {
		t.Errorf("bool step = %v, %v", toggled, err)
	}
	if _, err := IntValue(1).Step(FloatValue(0.5), 1); !errors.Is(err, ErrCoercion) {
		t.Errorf("int step by fractional float error = %v, want ErrCoercion", err)
	}
}

func TestJSONKeepsKind(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{IntValue(29), "29"},
		{FloatValue(-0.25), "-0.25"},
		{FloatValue(3), "3.0"},
		{FloatValue(1e21), "1e+21"},
		{BoolValue(true), "true"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.in)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tt.in, err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.in, b, tt.want)
		}
		var back Value
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s): %v", b, err)
		}
		if !back.Equal(tt.in) {
			t.Errorf("Unmarshal(%s) = %v (%s), want %v (%s)", b, back, back.Kind(), tt.in, tt.in.Kind())
		}
	}
}

func TestUnmarshalRejectsUnsupported(t *testing.T) {
	for _, in := range []string{`"x"`, `[1]`, `{"a":1}`} {
		var v Value
		if err := json.Unmarshal([]byte(in), &v); !errors.Is(err, ErrUnsupportedJSON) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrUnsupportedJSON", in, err)
		}
	}
}

func TestValuesKeepInsertionOrder(t *testing.T) {
	vs := NewValues()
	vs.Set("zeta", IntValue(1))
	vs.Set("alpha", FloatValue(2))
	vs.Set("mid", BoolValue(false))

	b, err := json.Marshal(vs)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"zeta":1,"alpha":2.0,"mid":false}`; string(b) != want {
		t.Errorf("Marshal = %s, want %s", b, want)
	}
}
