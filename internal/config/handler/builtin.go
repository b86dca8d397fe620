package handler

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Func builds a Handler for T from a pair of conversion functions.
func Func[T any](test T, serialize func(T) (string, error), deserialize func(string) (T, error)) Handler {
	return &funcHandler[T]{test: test, serialize: serialize, deserialize: deserialize}
}

type funcHandler[T any] struct {
	test        T
	serialize   func(T) (string, error)
	deserialize func(string) (T, error)
}

func (h *funcHandler[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (h *funcHandler[T]) TestValue() any { return h.test }

func (h *funcHandler[T]) Serialize(value any) (string, error) {
	v, ok := value.(T)
	if !ok {
		return "", &TypeError{Expected: h.Type().String(), Actual: fmt.Sprintf("%T", value)}
	}
	return h.serialize(v)
}

func (h *funcHandler[T]) Deserialize(s string) (any, error) {
	v, err := h.deserialize(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// YAML returns a handler that stores values of T as single-line YAML flow
// documents, e.g. "[1, 2, 3]" or "{x: 10, y: 20}".
func YAML[T any](test T) Handler {
	return Func(test, encodeYAML[T], decodeYAML[T])
}

func encodeYAML[T any](v T) (string, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return "", err
	}
	setFlow(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(&node); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func decodeYAML[T any](s string) (T, error) {
	var v T
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return v, fmt.Errorf("decoding yaml value: %w", err)
	}
	return v, nil
}

// setFlow switches every collection node to flow style so the document
// fits on one INI line.
func setFlow(n *yaml.Node) {
	if n.Kind == yaml.SequenceNode || n.Kind == yaml.MappingNode {
		n.Style = yaml.FlowStyle
	}
	for _, c := range n.Content {
		setFlow(c)
	}
}

// TOML returns a handler that stores struct or map values of T as a TOML
// inline table, e.g. "{Width = 800, Height = 600}".
func TOML[T any](test T) Handler {
	return Func(test, encodeTOML[T], decodeTOML[T])
}

// inlineDoc wraps a value so go-toml emits it as an inline table.
type inlineDoc[T any] struct {
	V T `toml:"v,inline"`
}

func encodeTOML[T any](v T) (string, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(inlineDoc[T]{V: v}); err != nil {
		return "", err
	}
	out := strings.TrimSpace(buf.String())
	prefix := "v = "
	if !strings.HasPrefix(out, prefix) {
		return "", fmt.Errorf("unexpected toml encoding %q", out)
	}
	return strings.TrimPrefix(out, prefix), nil
}

func decodeTOML[T any](s string) (T, error) {
	var doc inlineDoc[T]
	if err := toml.Unmarshal([]byte("v = "+s), &doc); err != nil {
		return doc.V, fmt.Errorf("decoding toml value: %w", err)
	}
	return doc.V, nil
}

// Duration returns a handler for time.Duration using Go duration syntax.
func Duration() Handler {
	return Func(1500*time.Millisecond,
		func(d time.Duration) (string, error) { return d.String(), nil },
		time.ParseDuration,
	)
}

// StringList returns a handler for []string stored as a comma-separated list.
// Surrounding whitespace of each element is dropped.
func StringList() Handler {
	return Func([]string{"a", "b"},
		func(v []string) (string, error) {
			for _, s := range v {
				if strings.Contains(s, ",") {
					return "", fmt.Errorf("list element %q contains a comma", s)
				}
			}
			return strings.Join(v, ", "), nil
		},
		func(s string) ([]string, error) {
			if strings.TrimSpace(s) == "" {
				return []string{}, nil
			}
			parts := strings.Split(s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts, nil
		},
	)
}
