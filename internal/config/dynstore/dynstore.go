// Package dynstore holds live configuration values in memory.
//
// The store is type-agnostic: values are opaque and never serialized. Each
// entry remembers the INI section it came from, if any, so callers can tell
// whether a later update must also be written to a file.
package dynstore

import (
	"sort"
	"sync"

	"github.com/dshills/layerconf/internal/logging"
)

// Entry is a live value and its originating section.
type Entry struct {
	Value any
	// Section is empty for values that are not file-backed.
	Section string
}

// FileBacked reports whether the entry originates from an INI section.
func (e Entry) FileBacked() bool {
	return e.Section != ""
}

// Store maps configuration names to variable entries.
type Store struct {
	mu     sync.Mutex
	stores map[string]map[string]Entry
	log    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		stores: make(map[string]map[string]Entry),
		log:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("dynstore")
	return s
}

// AddStore creates the variable map for a configuration.
// Adding an existing name logs a warning and changes nothing.
func (s *Store) AddStore(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[name]; ok {
		s.log.Warn("store %q already exists", name)
		return
	}
	s.stores[name] = make(map[string]Entry)
}

// HasStore reports whether the configuration has a variable map.
func (s *Store) HasStore(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stores[name]
	return ok
}

// AddVariable adds a variable. Existing variables are never overwritten.
// It reports whether the variable was added.
func (s *Store) AddVariable(name, variable string, value any, section string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(name, variable, Entry{Value: value, Section: section})
}

// AddVariables adds several variables, skipping names that already exist.
// It returns the names that were added.
func (s *Store) AddVariables(name string, entries map[string]Entry) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(entries))
	for _, variable := range sortedKeys(entries) {
		if s.addLocked(name, variable, entries[variable]) {
			added = append(added, variable)
		}
	}
	return added
}

func (s *Store) addLocked(name, variable string, e Entry) bool {
	vars, ok := s.storeLocked(name)
	if !ok {
		return false
	}
	if _, exists := vars[variable]; exists {
		s.log.Warn("variable %q already exists in store %q", variable, name)
		return false
	}
	vars[variable] = e
	return true
}

// SetVariable replaces the value of an existing variable, keeping its
// section. Unknown variables are skipped with a warning.
// It returns the previous entry and whether the update happened.
func (s *Store) SetVariable(name, variable string, value any) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(name, variable, value)
}

// SetVariables updates several variables; unknown names are skipped.
// It returns the previous entries of the variables that were updated.
func (s *Store) SetVariables(name string, values map[string]any) map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]Entry, len(values))
	for _, variable := range sortedKeys(values) {
		if old, ok := s.setLocked(name, variable, values[variable]); ok {
			prev[variable] = old
		}
	}
	return prev
}

func (s *Store) setLocked(name, variable string, value any) (Entry, bool) {
	vars, ok := s.storeLocked(name)
	if !ok {
		return Entry{}, false
	}
	old, exists := vars[variable]
	if !exists {
		s.log.Warn("variable %q not found in store %q", variable, name)
		return Entry{}, false
	}
	vars[variable] = Entry{Value: value, Section: old.Section}
	return old, true
}

// GetVariable returns a variable's entry. A miss logs a warning.
func (s *Store) GetVariable(name, variable string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, ok := s.storeLocked(name)
	if !ok {
		return Entry{}, false
	}
	e, exists := vars[variable]
	if !exists {
		s.log.Warn("variable %q not found in store %q", variable, name)
	}
	return e, exists
}

// DeleteVariable removes a variable. It reports whether it existed.
func (s *Store) DeleteVariable(name, variable string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(name, variable)
}

// DeleteVariables removes several variables and returns the ones removed.
func (s *Store) DeleteVariables(name string, variables ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]string, 0, len(variables))
	for _, v := range variables {
		if s.deleteLocked(name, v) {
			removed = append(removed, v)
		}
	}
	return removed
}

func (s *Store) deleteLocked(name, variable string) bool {
	vars, ok := s.storeLocked(name)
	if !ok {
		return false
	}
	if _, exists := vars[variable]; !exists {
		s.log.Warn("cannot delete %q: not found in store %q", variable, name)
		return false
	}
	delete(vars, variable)
	return true
}

// Clear removes every variable of a configuration, keeping the store.
func (s *Store) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storeLocked(name); ok {
		s.stores[name] = make(map[string]Entry)
	}
}

// Keys returns the variable names of a configuration in sorted order.
func (s *Store) Keys(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, ok := s.storeLocked(name)
	if !ok {
		return nil
	}
	return sortedKeys(vars)
}

// Snapshot returns a copy of every entry of a configuration.
func (s *Store) Snapshot(name string) map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, ok := s.storeLocked(name)
	if !ok {
		return nil
	}
	out := make(map[string]Entry, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// storeLocked returns the variable map for name, warning on a miss.
func (s *Store) storeLocked(name string) (map[string]Entry, bool) {
	vars, ok := s.stores[name]
	if !ok {
		s.log.Warn("store %q not found", name)
	}
	return vars, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
