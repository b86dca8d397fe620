// Package loader reads default configuration values from structured files.
//
// Loaders turn a TOML or YAML document into the section -> option -> value
// shape of an INI default document, so applications can ship their defaults
// in whichever format they already use.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultSection receives top-level scalar values.
const DefaultSection = "Default"

// Loader is the interface for default-value loaders.
type Loader interface {
	// Load reads the source and returns section -> option -> value.
	// A missing source returns nil, nil.
	Load() (map[string]map[string]string, error)
}

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}

// ParseError represents an error while parsing a defaults file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// readFile returns nil data for a missing file.
func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading defaults file %s: %w", path, err)
	}
	return data, nil
}

// Flatten converts a decoded document into INI sections. Top-level tables
// become sections, nested tables become dotted sections ("Window.Sub"),
// top-level scalars land in DefaultSection and lists are joined with ", ".
func Flatten(doc map[string]any) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		if table, ok := asTable(val); ok {
			if err := flattenTable(out, key, table); err != nil {
				return nil, err
			}
			continue
		}
		s, err := formatValue(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		section(out, DefaultSection)[key] = s
	}
	return out, nil
}

func flattenTable(out map[string]map[string]string, name string, table map[string]any) error {
	sec := section(out, name)
	for _, key := range sortedKeys(table) {
		val := table[key]
		if sub, ok := asTable(val); ok {
			if err := flattenTable(out, name+"."+key, sub); err != nil {
				return err
			}
			continue
		}
		s, err := formatValue(val)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", name, key, err)
		}
		sec[key] = s
	}
	return nil
}

func section(out map[string]map[string]string, name string) map[string]string {
	if out[name] == nil {
		out[name] = make(map[string]string)
	}
	return out[name]
}

func asTable(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[fmt.Sprint(k)] = v
		}
		return m, true
	}
	return nil, false
}

// formatValue renders a scalar or list the way the scalar type handlers
// parse it back.
func formatValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case time.Time:
		return t.Format(time.RFC3339), nil
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			if _, ok := asTable(item); ok {
				return "", fmt.Errorf("tables inside lists are not supported")
			}
			s, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
