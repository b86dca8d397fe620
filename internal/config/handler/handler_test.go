package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dshills/layerconf/internal/logging"
)

func newTestRegistry() *Registry {
	return NewRegistry(WithLogger(logging.Discard()))
}

// tripleHandler stores [3]int as "a,b,c". When asList is set it decodes
// into a []int, which breaks the round-trip.
type tripleHandler struct {
	asList bool
}

func (h tripleHandler) Type() reflect.Type { return reflect.TypeFor[[3]int]() }

func (h tripleHandler) TestValue() any { return [3]int{1, 2, 3} }

func (h tripleHandler) Serialize(v any) (string, error) {
	t, ok := v.([3]int)
	if !ok {
		return "", fmt.Errorf("not a triple: %T", v)
	}
	return fmt.Sprintf("%d,%d,%d", t[0], t[1], t[2]), nil
}

func (h tripleHandler) Deserialize(s string) (any, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("want 3 elements, got %d", len(parts))
	}
	list := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		list[i] = n
	}
	if h.asList {
		return list, nil
	}
	return [3]int{list[0], list[1], list[2]}, nil
}

func TestRegistry_Add(t *testing.T) {
	r := newTestRegistry()

	if err := r.Add(tripleHandler{}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !r.Has(reflect.TypeFor[[3]int]()) {
		t.Error("handler not registered")
	}

	err := r.Add(tripleHandler{})
	if !errors.Is(err, ErrHandlerExists) {
		t.Errorf("second Add() error = %v, want ErrHandlerExists", err)
	}
}

func TestRegistry_Add_RejectsBrokenRoundTrip(t *testing.T) {
	r := newTestRegistry()

	err := r.Add(tripleHandler{asList: true})
	if !errors.Is(err, ErrHandlerValidation) {
		t.Fatalf("Add() error = %v, want ErrHandlerValidation", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %T is not a *ValidationError", err)
	}
	if r.Has(reflect.TypeFor[[3]int]()) {
		t.Error("failed handler must not be registered")
	}
	if _, err := r.Get(reflect.TypeFor[[3]int]()); !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("Get() error = %v, want ErrHandlerNotFound", err)
	}
}

func TestRegistry_Add_RejectsSerializeFailure(t *testing.T) {
	r := newTestRegistry()
	h := Func(7,
		func(int) (string, error) { return "", errors.New("boom") },
		strconv.Atoi,
	)

	err := r.Add(h)
	if !errors.Is(err, ErrHandlerValidation) {
		t.Errorf("Add() error = %v, want ErrHandlerValidation", err)
	}
}

func TestRegistry_Get_Scalars(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		typ   reflect.Type
		value any
		str   string
	}{
		{String, "hello", "hello"},
		{Int, 800, "800"},
		{Float, 1.25, "1.25"},
		{Bool, true, "true"},
	}

	for _, tt := range tests {
		h, err := r.Get(tt.typ)
		if err != nil {
			t.Fatalf("Get(%v) error = %v", tt.typ, err)
		}
		s, err := h.Serialize(tt.value)
		if err != nil {
			t.Fatalf("Serialize(%v) error = %v", tt.value, err)
		}
		if s != tt.str {
			t.Errorf("Serialize(%v) = %q, want %q", tt.value, s, tt.str)
		}
		back, err := h.Deserialize(s)
		if err != nil {
			t.Fatalf("Deserialize(%q) error = %v", s, err)
		}
		if back != tt.value {
			t.Errorf("round-trip of %v gave %v", tt.value, back)
		}
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get(reflect.TypeFor[complex128]())
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("Get() error = %v, want ErrHandlerNotFound", err)
	}
}

func TestScalar_BoolSpellings(t *testing.T) {
	h, _ := newTestRegistry().Get(Bool)

	for _, s := range []string{"yes", "On", "TRUE", "1"} {
		v, err := h.Deserialize(s)
		if err != nil || v != true {
			t.Errorf("Deserialize(%q) = %v, %v; want true", s, v, err)
		}
	}
	for _, s := range []string{"no", "off", "false", "0"} {
		v, err := h.Deserialize(s)
		if err != nil || v != false {
			t.Errorf("Deserialize(%q) = %v, %v; want false", s, v, err)
		}
	}
	if _, err := h.Deserialize("maybe"); err == nil {
		t.Error("Deserialize(\"maybe\") should fail")
	}
}

func TestScalar_SerializeWrongType(t *testing.T) {
	h, _ := newTestRegistry().Get(Int)

	_, err := h.Serialize("800")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Serialize(string) error = %v, want ErrTypeMismatch", err)
	}
}

func TestCheck(t *testing.T) {
	if err := Check(Int, 3); err != nil {
		t.Errorf("Check(int, 3) = %v", err)
	}
	if err := Check(Int, nil); err != nil {
		t.Errorf("Check(int, nil) = %v", err)
	}
	if err := Check(nil, "anything"); err != nil {
		t.Errorf("Check(nil, ...) = %v", err)
	}

	err := Check(Int, 3.0)
	var terr *TypeError
	if !errors.As(err, &terr) {
		t.Fatalf("Check(int, 3.0) = %v, want *TypeError", err)
	}
	if terr.Expected != "int" || terr.Actual != "float64" {
		t.Errorf("TypeError = %+v", terr)
	}
}

func TestRecognized(t *testing.T) {
	r := newTestRegistry()
	triple := reflect.TypeFor[[3]int]()

	if !r.Recognized(Float) {
		t.Error("float64 should be recognized")
	}
	if r.Recognized(triple) {
		t.Error("[3]int should not be recognized before registration")
	}
	if err := r.Add(tripleHandler{}); err != nil {
		t.Fatal(err)
	}
	if !r.Recognized(triple) {
		t.Error("[3]int should be recognized after registration")
	}
	if r.Recognized(nil) {
		t.Error("nil type should not be recognized")
	}
}

type point struct {
	X int
	Y int
}

func TestBuiltinHandlers_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		samples []any
	}{
		{"yaml list", YAML([]int{1, 2, 3}), []any{[]int{4}, []int{-1, 0, 1}}},
		{"yaml map", YAML(map[string]string{"a": "b"}), []any{map[string]string{"k": "v", "x": "y"}}},
		{"yaml struct", YAML(point{X: 1, Y: 2}), []any{point{X: -5, Y: 600}}},
		{"toml struct", TOML(point{X: 10, Y: 20}), []any{point{X: 0, Y: 0}, point{X: 1024, Y: 768}}},
		{"duration", Duration(), []any{time.Second, 90 * time.Minute}},
		{"string list", StringList(), []any{[]string{"one"}, []string{"x", "y", "z"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			if err := r.Add(tt.handler); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			for _, v := range append([]any{tt.handler.TestValue()}, tt.samples...) {
				s, err := tt.handler.Serialize(v)
				if err != nil {
					t.Fatalf("Serialize(%v) error = %v", v, err)
				}
				if strings.Contains(s, "\n") {
					t.Errorf("Serialize(%v) = %q spans lines", v, s)
				}
				back, err := tt.handler.Deserialize(s)
				if err != nil {
					t.Fatalf("Deserialize(%q) error = %v", s, err)
				}
				if !reflect.DeepEqual(v, back) {
					t.Errorf("round-trip %#v -> %q -> %#v", v, s, back)
				}
			}
		})
	}
}

func TestStringList_RejectsComma(t *testing.T) {
	if _, err := StringList().Serialize([]string{"a,b"}); err == nil {
		t.Error("expected error for element containing a comma")
	}
}
