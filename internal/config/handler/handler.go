// Package handler provides the type handler registry that converts typed
// configuration values to and from the strings stored in INI files.
//
// The four scalar kinds (string, int, float64, bool) are served implicitly.
// Every other type needs an explicitly registered Handler, and each handler
// must survive a round-trip of its own test value before it is accepted.
package handler

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/layerconf/internal/logging"
)

// Handler converts values of one type to and from their string form.
type Handler interface {
	// Type is the type this handler serves.
	Type() reflect.Type
	// Serialize converts a value to its string form.
	Serialize(value any) (string, error)
	// Deserialize parses a string form back into a value of Type.
	Deserialize(s string) (any, error)
	// TestValue is a sample used to validate the round-trip at registration.
	TestValue() any
}

// Scalar types served without registration.
var (
	String = reflect.TypeFor[string]()
	Int    = reflect.TypeFor[int]()
	Float  = reflect.TypeFor[float64]()
	Bool   = reflect.TypeFor[bool]()
)

// Registry maps types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]Handler
	log      *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[reflect.Type]Handler),
		log:      logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("handler")
	return r
}

// Add registers a handler after validating it against its own test value.
// A handler that fails validation is not registered.
func (r *Registry) Add(h Handler) error {
	t := h.Type()
	if t == nil {
		return &ValidationError{Type: "<nil>", Message: "handler declares no type"}
	}

	if err := validate(h); err != nil {
		r.log.Error("rejected handler for %s: %v", t, err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, t)
	}
	r.handlers[t] = h
	r.log.Debug("registered handler for %s", t)
	return nil
}

// Get returns the handler for t. Scalars fall back to an implicit handler.
func (r *Registry) Get(t reflect.Type) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[t]
	r.mu.RUnlock()

	if ok {
		return h, nil
	}
	if s, ok := scalarHandler(t); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrHandlerNotFound, t)
}

// Has reports whether a handler was explicitly registered for t.
func (r *Registry) Has(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Recognized reports whether t can be serialized, either by a registered
// handler or as a scalar.
func (r *Registry) Recognized(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if IsScalar(t) {
		return true
	}
	return r.Has(t)
}

// Check returns a TypeError when value is non-nil and not exactly of type t.
// A nil t accepts any value.
func Check(t reflect.Type, value any) error {
	if t == nil || value == nil {
		return nil
	}
	if vt := reflect.TypeOf(value); vt != t {
		return &TypeError{Expected: t.String(), Actual: vt.String()}
	}
	return nil
}

// IsScalar reports whether t is one of the implicitly handled types.
func IsScalar(t reflect.Type) bool {
	switch t {
	case String, Int, Float, Bool:
		return true
	}
	return false
}

// validate round-trips the handler's test value.
func validate(h Handler) error {
	name := h.Type().String()
	sample := h.TestValue()

	if err := Check(h.Type(), sample); err != nil {
		return &ValidationError{Type: name, Message: "test value has wrong type", Err: err}
	}

	s, err := h.Serialize(sample)
	if err != nil {
		return &ValidationError{Type: name, Message: "serialize failed", Err: err}
	}

	back, err := h.Deserialize(s)
	if err != nil {
		return &ValidationError{Type: name, Message: "deserialize failed", Err: err}
	}

	if !reflect.DeepEqual(sample, back) {
		return &ValidationError{
			Type:    name,
			Message: fmt.Sprintf("round-trip mismatch: %#v became %#v", sample, back),
		}
	}
	return nil
}

// scalar implements Handler for the built-in scalar kinds.
type scalar struct {
	t reflect.Type
}

func scalarHandler(t reflect.Type) (Handler, bool) {
	if !IsScalar(t) {
		return nil, false
	}
	return scalar{t: t}, true
}

func (s scalar) Type() reflect.Type { return s.t }

func (s scalar) TestValue() any {
	switch s.t {
	case Int:
		return 42
	case Float:
		return 0.5
	case Bool:
		return true
	default:
		return "value"
	}
}

func (s scalar) Serialize(value any) (string, error) {
	if err := Check(s.t, value); err != nil {
		return "", err
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", &TypeError{Expected: s.t.String(), Actual: fmt.Sprintf("%T", value)}
}

func (s scalar) Deserialize(str string) (any, error) {
	switch s.t {
	case String:
		return str, nil
	case Int:
		return strconv.Atoi(str)
	case Float:
		return strconv.ParseFloat(str, 64)
	case Bool:
		return parseBool(str)
	}
	return nil, fmt.Errorf("%w: %v", ErrHandlerNotFound, s.t)
}

// parseBool accepts the spellings INI files commonly use in addition to
// those strconv.ParseBool understands.
func parseBool(str string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(str)
}
