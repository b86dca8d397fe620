// Package filestore persists configuration values as strings in INI files.
//
// Every named configuration owns two documents: a default document that is
// never written by user edits, and a custom document that holds the user's
// overrides and is the only one saved back to disk after setup. Reads
// prefer the custom document and fall back to the default one.
package filestore

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/dshills/layerconf/internal/logging"
)

// NoDefaultValue is returned by GetSetting when an option is missing from
// both documents and no fallback was supplied.
const NoDefaultValue = "NoDefaultValue"

// Default file names used when a PathConfig leaves them empty.
const (
	DefaultFileName = "default-config.ini"
	CustomFileName  = "custom-config.ini"
)

// DefaultsFunc produces the contents of a default document as
// section -> option -> value.
type DefaultsFunc func() (map[string]map[string]string, error)

// Static returns a DefaultsFunc that yields a fixed set of values.
func Static(values map[string]map[string]string) DefaultsFunc {
	return func() (map[string]map[string]string, error) {
		return values, nil
	}
}

// PathConfig locates the files of one named configuration.
type PathConfig struct {
	// Dir holds both files. It is created if missing.
	Dir string
	// DefaultFile is the default document's file name.
	DefaultFile string
	// CustomFile is the custom document's file name.
	CustomFile string
	// Defaults populates the default document when its file is missing.
	Defaults DefaultsFunc
}

// DefaultPath returns the default document's file path.
func (p PathConfig) DefaultPath() string {
	return filepath.Join(p.Dir, p.DefaultFile)
}

// CustomPath returns the custom document's file path.
func (p PathConfig) CustomPath() string {
	return filepath.Join(p.Dir, p.CustomFile)
}

// Validate fills in default file names and checks that both are distinct
// .ini names.
func (p *PathConfig) Validate() error {
	if p.DefaultFile == "" {
		p.DefaultFile = DefaultFileName
	}
	if p.CustomFile == "" {
		p.CustomFile = CustomFileName
	}

	for _, name := range []string{p.DefaultFile, p.CustomFile} {
		if filepath.Base(name) != name {
			return fmt.Errorf("%w: %q must be a bare file name", ErrInvalidFileName, name)
		}
		if !strings.EqualFold(filepath.Ext(name), ".ini") {
			return fmt.Errorf("%w: %q must end in .ini", ErrInvalidFileName, name)
		}
	}
	if p.DefaultFile == p.CustomFile {
		return fmt.Errorf("%w: default and custom files are both %q", ErrInvalidFileName, p.DefaultFile)
	}
	return nil
}

// configData is the state of one named configuration.
type configData struct {
	paths  PathConfig
	def    *ini.File
	custom *ini.File
	// dirty marks custom edits not yet written to disk.
	dirty bool
}

// Store manages the INI documents of every named configuration.
//
// A single mutex guards all configurations. Exported methods take the lock
// and delegate to *Locked helpers, which compose freely.
type Store struct {
	mu      sync.Mutex
	configs map[string]*configData
	log     *logging.Logger
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
		configs: make(map[string]*configData),
		log:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("filestore")
	return s
}

// AddConfig registers a named configuration and loads its files.
//
// Adding a name twice logs a warning and does nothing. When the default
// file is missing and paths.Defaults is set, the default document is
// populated from it and written to disk. A missing custom file starts out
// empty and is created by the first save.
func (s *Store) AddConfig(name string, paths PathConfig) error {
	if err := paths.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[name]; exists {
		s.log.Warn("configuration %q already exists", name)
		return nil
	}

	if err := ensureDir(paths.Dir); err != nil {
		s.log.Error("creating directory for %q: %v", name, err)
		return err
	}

	def, found, err := readDocument(paths.DefaultPath())
	if err != nil {
		s.log.Error("loading default config %q: %v", name, err)
		return err
	}
	if !found && paths.Defaults != nil {
		values, err := paths.Defaults()
		if err != nil {
			return fmt.Errorf("producing defaults for %q: %w", name, err)
		}
		if err := populate(def, values); err != nil {
			return fmt.Errorf("populating defaults for %q: %w", name, err)
		}
		if err := writeDocument(paths.DefaultPath(), def); err != nil {
			s.log.Error("writing default config %q: %v", name, err)
			return err
		}
		s.log.Info("created default config %s", paths.DefaultPath())
	}

	custom, _, err := readDocument(paths.CustomPath())
	if err != nil {
		s.log.Error("loading custom config %q: %v", name, err)
		return err
	}

	s.configs[name] = &configData{paths: paths, def: def, custom: custom}
	return nil
}

// HasConfig reports whether a configuration was added.
func (s *Store) HasConfig(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.configs[name]
	return ok
}

// Names returns the configuration names in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.configs))
	for n := range s.configs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Paths returns the file locations of a configuration.
func (s *Store) Paths(name string) (PathConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return PathConfig{}, err
	}
	return cd.paths, nil
}

// Lookup returns an option's value: the custom one unless forceDefault is
// set, otherwise the default one. found is false when neither has it.
func (s *Store) Lookup(name, section, option string, forceDefault bool) (value string, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(name, section, option, forceDefault)
}

func (s *Store) lookupLocked(name, section, option string, forceDefault bool) (string, bool, error) {
	cd, err := s.configLocked(name)
	if err != nil {
		return "", false, err
	}
	if !forceDefault {
		if v, ok := lookup(cd.custom, section, option); ok {
			return v, true, nil
		}
	}
	v, ok := lookup(cd.def, section, option)
	return v, ok, nil
}

// HasCustom reports whether the custom document holds the option.
func (s *Store) HasCustom(name, section, option string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return false, err
	}
	_, ok := lookup(cd.custom, section, option)
	return ok, nil
}

// GetOption configures GetSetting.
type GetOption func(*getOptions)

type getOptions struct {
	fallback     string
	hasFallback  bool
	forceDefault bool
}

// WithFallback sets the value returned when the option is missing.
func WithFallback(v string) GetOption {
	return func(o *getOptions) {
		o.fallback = v
		o.hasFallback = true
	}
}

// ForceDefault ignores the custom document.
func ForceDefault() GetOption {
	return func(o *getOptions) {
		o.forceDefault = true
	}
}

// GetSetting returns an option's value. A missing option is not an error:
// the fallback, or NoDefaultValue, is returned instead. Only an unknown
// configuration name fails.
func (s *Store) GetSetting(name, section, option string, opts ...GetOption) (string, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	v, found, err := s.Lookup(name, section, option, o.forceDefault)
	if err != nil {
		return "", err
	}
	if found {
		return v, nil
	}
	if o.hasFallback {
		return o.fallback, nil
	}
	return NoDefaultValue, nil
}

// GetSection returns the merged options of a section, custom over default.
func (s *Store) GetSection(name, section string, forceDefault bool) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	if values, ok := sectionValues(cd.def, section); ok {
		for k, v := range values {
			out[k] = v
		}
	}
	if !forceDefault {
		if values, ok := sectionValues(cd.custom, section); ok {
			for k, v := range values {
				out[k] = v
			}
		}
	}
	return out, nil
}

// GetSettings returns every option of a configuration, custom over default.
func (s *Store) GetSettings(name string) (map[string]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return nil, err
	}

	out := documentValues(cd.def)
	for section, values := range documentValues(cd.custom) {
		if out[section] == nil {
			out[section] = make(map[string]string, len(values))
		}
		for k, v := range values {
			out[section][k] = v
		}
	}
	return out, nil
}

// SaveSetting stores a value in the custom document. With autoSave the
// custom file is written immediately; otherwise the edit stays staged until
// SaveCustomConfigToFile.
func (s *Store) SaveSetting(name, section, option, value string, autoSave bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	if err := setValue(cd.custom, section, option, value); err != nil {
		return err
	}
	cd.dirty = true

	if autoSave {
		return s.saveLocked(name, cd)
	}
	return nil
}

// SaveSettings stores several values with at most one disk write.
func (s *Store) SaveSettings(name string, settings map[string]map[string]string, autoSave bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		return nil
	}
	if err := populate(cd.custom, settings); err != nil {
		return err
	}
	cd.dirty = true

	if autoSave {
		return s.saveLocked(name, cd)
	}
	return nil
}

// ResetSetting copies an option from the default document into the custom
// one and saves. An option without a default is removed from the custom
// document.
func (s *Store) ResetSetting(name, section, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	if err := resetOption(cd, section, option); err != nil {
		return err
	}
	cd.dirty = true
	return s.saveLocked(name, cd)
}

func resetOption(cd *configData, section, option string) error {
	if v, ok := lookup(cd.def, section, option); ok {
		return setValue(cd.custom, section, option, v)
	}
	if sec, err := cd.custom.GetSection(section); err == nil {
		sec.DeleteKey(option)
	}
	return nil
}

// ResetSection replaces a custom section with the default one and saves.
func (s *Store) ResetSection(name, section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	if err := copySection(cd.custom, cd.def, section); err != nil {
		return err
	}
	cd.dirty = true
	return s.saveLocked(name, cd)
}

// ResetConfig replaces the whole custom document with the default one and
// saves.
func (s *Store) ResetConfig(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	custom, err := cloneDocument(cd.def)
	if err != nil {
		return err
	}
	cd.custom = custom
	cd.dirty = true
	return s.saveLocked(name, cd)
}

// SaveCustomConfigToFile writes the custom document to disk.
func (s *Store) SaveCustomConfigToFile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	return s.saveLocked(name, cd)
}

// LoadCustomConfigFromFile replaces the custom document with the file's
// contents, discarding staged edits. A missing file yields an empty document.
func (s *Store) LoadCustomConfigFromFile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return err
	}
	custom, _, err := readDocument(cd.paths.CustomPath())
	if err != nil {
		s.log.Error("reloading custom config %q: %v", name, err)
		return err
	}
	if cd.dirty {
		s.log.Warn("discarding unsaved edits of %q", name)
	}
	cd.custom = custom
	cd.dirty = false
	return nil
}

// Dirty reports whether the custom document has unsaved edits.
func (s *Store) Dirty(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, err := s.configLocked(name)
	if err != nil {
		return false, err
	}
	return cd.dirty, nil
}

func (s *Store) saveLocked(name string, cd *configData) error {
	path := cd.paths.CustomPath()
	if err := writeDocument(path, cd.custom); err != nil {
		s.log.Error("saving custom config %q: %v", name, err)
		return err
	}
	cd.dirty = false
	s.log.Debug("saved %s", path)
	return nil
}

func (s *Store) configLocked(name string) (*configData, error) {
	cd, ok := s.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, name)
	}
	return cd, nil
}
