package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/layerconf/internal/config/dynstore"
	"github.com/dshills/layerconf/internal/config/filestore"
	"github.com/dshills/layerconf/internal/config/handler"
	"github.com/dshills/layerconf/internal/config/loader"
	"github.com/dshills/layerconf/internal/config/notify"
	"github.com/dshills/layerconf/internal/config/watcher"
	"github.com/dshills/layerconf/internal/logging"
)

// Change sources reported in notify.Change.Source.
const (
	sourceSet    = "set"
	sourceDelete = "delete"
	sourceReset  = "reset"
	sourceReload = "reload"
)

// NoDefaultValue is returned by GetSetting for a missing option without a
// fallback.
const NoDefaultValue = filestore.NoDefaultValue

type (
	// PathConfig locates the files of a configuration.
	PathConfig = filestore.PathConfig

	// DefaultsFunc produces the contents of a missing default file.
	DefaultsFunc = filestore.DefaultsFunc

	// GetOption configures GetSetting.
	GetOption = filestore.GetOption
)

// Re-exported GetSetting options.
var (
	WithFallback = filestore.WithFallback
	ForceDefault = filestore.ForceDefault
)

// DefaultsFromFile returns a producer of default values read from a TOML or
// YAML file, chosen by extension. Top-level tables become sections.
func DefaultsFromFile(path string) (DefaultsFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return loader.TOMLDefaults(path), nil
	case ".yaml", ".yml":
		return loader.YAMLDefaults(path), nil
	}
	return nil, fmt.Errorf("%w: unsupported defaults file %s", ErrInvalidFileName, path)
}

// Config is the entry point to the configuration stack. It keeps the
// dynamic store of live values and the file store of persisted strings in
// step, converting between the two with the handler registry.
//
// Config holds no lock while calling into the stores or while delivering
// notifications, so observers may call back into it.
type Config struct {
	files    *filestore.Store
	dyn      *dynstore.Store
	handlers *handler.Registry
	notifier *notify.Notifier
	watcher  *watcher.Watcher
	log      *logging.Logger

	enableWatcher bool
	debounce      time.Duration

	mu sync.Mutex

	// Registered variables by configuration and name
	variables map[string]map[string]*Variable

	// Configuration names by absolute custom file path
	customPaths map[string]string
}

// Option configures a Config instance.
type Option func(*Config)

// WithLogger sets the logger shared by all layers.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithWatcher enables reloading custom files edited outside the process.
func WithWatcher(enable bool) Option {
	return func(c *Config) {
		c.enableWatcher = enable
	}
}

// WithDebounce sets how long a custom file must be quiet before it is
// reloaded.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		c.debounce = d
	}
}

// New creates a Config with empty stores.
func New(opts ...Option) *Config {
	c := &Config{
		notifier:    notify.New(),
		log:         logging.Default(),
		debounce:    100 * time.Millisecond,
		variables:   make(map[string]map[string]*Variable),
		customPaths: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.files = filestore.New(filestore.WithLogger(c.log.WithComponent("filestore")))
	c.dyn = dynstore.New(dynstore.WithLogger(c.log.WithComponent("dynstore")))
	c.handlers = handler.NewRegistry(handler.WithLogger(c.log.WithComponent("handler")))

	if c.enableWatcher {
		w, err := watcher.New(watcher.WithDebounce(c.debounce), watcher.WithLogger(c.log))
		if err != nil {
			c.log.Error("starting file watcher: %v", err)
		} else {
			c.watcher = w
			w.OnChange(c.handleFileChange)
		}
	}

	return c
}

// Close stops the file watcher and drops all facade subscriptions.
func (c *Config) Close() error {
	var err error
	if c.watcher != nil {
		err = c.watcher.Close()
	}
	c.notifier.Close()
	return err
}

// AddConfig registers a named configuration and loads its files. Adding a
// name twice logs a warning and does nothing.
func (c *Config) AddConfig(name string, paths PathConfig) error {
	if c.files.HasConfig(name) {
		c.log.Warn("configuration %q already exists", name)
		return nil
	}
	if err := c.files.AddConfig(name, paths); err != nil {
		return err
	}
	c.dyn.AddStore(name)

	stored, err := c.files.Paths(name)
	if err != nil {
		return err
	}
	custom, err := filepath.Abs(stored.CustomPath())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.customPaths[custom] = name
	if c.variables[name] == nil {
		c.variables[name] = make(map[string]*Variable)
	}
	c.mu.Unlock()

	if c.watcher != nil {
		if err := c.watcher.Watch(custom); err != nil {
			c.log.Warn("watching %s: %v", custom, err)
		}
	}
	return nil
}

// AddCustomTypeHandler registers a handler after checking that it
// round-trips its own test value.
func (c *Config) AddCustomTypeHandler(h handler.Handler) error {
	return c.handlers.Add(h)
}

// GetSetting returns the persisted string of an option: custom, then
// default, then the fallback or NoDefaultValue.
func (c *Config) GetSetting(name, section, option string, opts ...GetOption) (string, error) {
	return c.files.GetSetting(name, section, option, opts...)
}

// GetSection returns a section's options, custom over default.
func (c *Config) GetSection(name, section string, forceDefault bool) (map[string]string, error) {
	return c.files.GetSection(name, section, forceDefault)
}

// GetSettings returns every option of a configuration, custom over default.
func (c *Config) GetSettings(name string) (map[string]map[string]string, error) {
	return c.files.GetSettings(name)
}

// SaveSetting stores a raw string in the custom document. Live variables
// are not updated; use SetVariable for those.
func (c *Config) SaveSetting(name, section, option, value string, autoSave bool) error {
	return c.files.SaveSetting(name, section, option, value, autoSave)
}

// SaveSettings stores several raw strings with at most one disk write.
func (c *Config) SaveSettings(name string, settings map[string]map[string]string, autoSave bool) error {
	return c.files.SaveSettings(name, settings, autoSave)
}

// ResetSetting restores an option's default and updates the matching live
// variable.
func (c *Config) ResetSetting(name, section, option string) error {
	if err := c.files.ResetSetting(name, section, option); err != nil {
		return err
	}
	return c.resync(name, notify.ChangeReset, sourceReset, func(k Key) bool {
		return k.Section() == section && k.Name() == option
	})
}

// ResetSection restores a section's defaults and updates its live variables.
func (c *Config) ResetSection(name, section string) error {
	if err := c.files.ResetSection(name, section); err != nil {
		return err
	}
	return c.resync(name, notify.ChangeReset, sourceReset, func(k Key) bool {
		return k.Section() == section
	})
}

// ResetConfig restores every default of a configuration and updates its
// live variables.
func (c *Config) ResetConfig(name string) error {
	if err := c.files.ResetConfig(name); err != nil {
		return err
	}
	return c.resync(name, notify.ChangeReset, sourceReset, nil)
}

// SaveCustomConfigToFile writes staged edits of a configuration to disk.
func (c *Config) SaveCustomConfigToFile(name string) error {
	return c.files.SaveCustomConfigToFile(name)
}

// LoadCustomConfigFromFile rereads the custom file, discarding staged edits,
// and updates the live file-backed variables.
func (c *Config) LoadCustomConfigFromFile(name string) error {
	if err := c.files.LoadCustomConfigFromFile(name); err != nil {
		return err
	}
	return c.resync(name, notify.ChangeReload, sourceReload, nil)
}

// Keys returns the registered variable names of a configuration.
func (c *Config) Keys(name string) []string {
	return c.dyn.Keys(name)
}

// Values returns the live value of every registered variable of a
// configuration, keyed by variable name.
func (c *Config) Values(name string) map[string]any {
	entries := c.dyn.Snapshot(name)
	if entries == nil {
		return nil
	}
	out := make(map[string]any, len(entries))
	for k, e := range entries {
		out[k] = e.Value
	}
	return out
}

// VariableOption configures AddVariable.
type VariableOption func(*variableOptions)

type variableOptions struct {
	value        any
	defaultValue any
	initFromFile bool
}

// WithValue sets the initial value.
func WithValue(v any) VariableOption {
	return func(o *variableOptions) {
		o.value = v
	}
}

// WithDefault sets the default value; it falls back to the initial value.
func WithDefault(v any) VariableOption {
	return func(o *variableOptions) {
		o.defaultValue = v
	}
}

// InitFromFile seeds the variable from its persisted string when one
// exists, in preference to the initial value.
func InitFromFile() VariableOption {
	return func(o *variableOptions) {
		o.initFromFile = true
	}
}

// VariableDecl describes one variable for AddVariables.
type VariableDecl struct {
	Key          Key
	Value        any
	Default      any
	InitFromFile bool
}

// AddVariable registers a variable.
//
// With InitFromFile the persisted value, if any, becomes the initial value.
// Otherwise a file-backed variable without a custom entry writes its value
// through to the custom document. Registering a name twice within a
// configuration fails with ErrVariableExists and leaves the first
// registration untouched.
func (c *Config) AddVariable(key Key, opts ...VariableOption) (*Variable, error) {
	var o variableOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !key.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if !c.files.HasConfig(key.ConfigName()) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, key.ConfigName())
	}
	if t := key.Type(); t != nil && !c.handlers.Recognized(t) {
		return nil, fmt.Errorf("%w: %v", ErrHandlerNotFound, t)
	}
	if c.lookup(key) != nil {
		return nil, fmt.Errorf("%w: %s", ErrVariableExists, key)
	}

	v, err := NewVariable(key, o.value, o.defaultValue)
	if err != nil {
		return nil, err
	}
	v.owner = c
	v.log = c.log
	if t := key.Type(); t != nil {
		if v.handler, err = c.handlers.Get(t); err != nil {
			return nil, err
		}
	}

	if err := c.seed(v, o.initFromFile); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, exists := c.variables[key.ConfigName()][key.Name()]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrVariableExists, key)
	}
	if c.variables[key.ConfigName()] == nil {
		c.variables[key.ConfigName()] = make(map[string]*Variable)
	}
	c.variables[key.ConfigName()][key.Name()] = v
	c.mu.Unlock()

	c.dyn.AddVariable(key.ConfigName(), key.Name(), v.Value(), entrySection(key))
	return v, nil
}

// AddVariables registers several variables in order. It stops at the first
// failure and returns the variables registered so far.
func (c *Config) AddVariables(decls ...VariableDecl) ([]*Variable, error) {
	added := make([]*Variable, 0, len(decls))
	for _, d := range decls {
		opts := []VariableOption{WithValue(d.Value), WithDefault(d.Default)}
		if d.InitFromFile {
			opts = append(opts, InitFromFile())
		}
		v, err := c.AddVariable(d.Key, opts...)
		if err != nil {
			return added, err
		}
		added = append(added, v)
	}
	return added, nil
}

// seed settles the initial value of a variable that is not yet visible.
func (c *Config) seed(v *Variable, initFromFile bool) error {
	key := v.key

	if initFromFile {
		s, found, err := c.files.Lookup(key.ConfigName(), key.Section(), key.Name(), false)
		if err != nil {
			return err
		}
		if found {
			value, err := c.decode(v, s)
			if err != nil {
				return fmt.Errorf("initializing %s: %w", key, err)
			}
			v.value = value
			return nil
		}
	}

	if !key.SaveToFile() || v.value == nil {
		return nil
	}
	exists, err := c.files.HasCustom(key.ConfigName(), key.Section(), key.Name())
	if err != nil || exists {
		return err
	}
	s, err := c.encode(v, v.value)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", key, err)
	}
	return c.files.SaveSetting(key.ConfigName(), key.Section(), key.Name(), s, key.AutoSave())
}

// SetVariable changes the live value of a registered variable.
//
// A nil value or an unregistered key logs a warning and does nothing. A
// value of the wrong type fails. File-backed variables are written to the
// custom document, and to disk when the key has AutoSave. Observers are
// notified after the stores are updated. A failed disk write is returned
// after the live value has been updated and observers notified.
func (c *Config) SetVariable(key Key, value any) error {
	if value == nil {
		c.log.Warn("ignoring nil value for %s", key)
		return nil
	}
	v := c.lookup(key)
	if v == nil {
		c.log.Warn("variable %s is not registered", key)
		return nil
	}
	key = v.key

	if err := handler.Check(key.Type(), value); err != nil {
		return err
	}
	var s string
	if key.SaveToFile() {
		var err error
		if s, err = c.encode(v, value); err != nil {
			return fmt.Errorf("serializing %s: %w", key, err)
		}
	}

	// The file is written first so that a reload racing with this call
	// never leaves the live value behind the file.
	var err error
	if key.SaveToFile() {
		err = c.files.SaveSetting(key.ConfigName(), key.Section(), key.Name(), s, key.AutoSave())
	}

	c.dyn.SetVariable(key.ConfigName(), key.Name(), value)
	old := v.swap(value)

	v.publish(notify.Change{
		Path:     key.Path(),
		Type:     notify.ChangeSet,
		OldValue: old,
		NewValue: value,
		Source:   sourceSet,
	})
	c.notifier.NotifySet(key.Path(), old, value, sourceSet)
	return err
}

// SetVariables changes several variables. Every value is validated before
// any is applied. File-backed values of one configuration are saved with at
// most one disk write.
func (c *Config) SetVariables(values map[Key]any) error {
	type update struct {
		v     *Variable
		value any
		text  string
	}

	var updates []update
	for key, value := range values {
		if value == nil {
			c.log.Warn("ignoring nil value for %s", key)
			continue
		}
		v := c.lookup(key)
		if v == nil {
			c.log.Warn("variable %s is not registered", key)
			continue
		}
		if err := handler.Check(v.key.Type(), value); err != nil {
			return err
		}
		u := update{v: v, value: value}
		if v.key.SaveToFile() {
			s, err := c.encode(v, value)
			if err != nil {
				return fmt.Errorf("serializing %s: %w", v.key, err)
			}
			u.text = s
		}
		updates = append(updates, u)
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].v.key.Path() < updates[j].v.key.Path()
	})

	live := make(map[string]map[string]any)
	staged := make(map[string]map[string]map[string]string)
	saved := make(map[string]map[string]map[string]string)
	for _, u := range updates {
		key := u.v.key
		cfg := key.ConfigName()
		if live[cfg] == nil {
			live[cfg] = make(map[string]any)
		}
		live[cfg][key.Name()] = u.value

		if !key.SaveToFile() {
			continue
		}
		target := staged
		if key.AutoSave() {
			target = saved
		}
		if target[cfg] == nil {
			target[cfg] = make(map[string]map[string]string)
		}
		if target[cfg][key.Section()] == nil {
			target[cfg][key.Section()] = make(map[string]string)
		}
		target[cfg][key.Section()][key.Name()] = u.text
	}

	var errs []error
	for cfg, settings := range staged {
		if err := c.files.SaveSettings(cfg, settings, false); err != nil {
			errs = append(errs, err)
		}
	}
	for cfg, settings := range saved {
		if err := c.files.SaveSettings(cfg, settings, true); err != nil {
			errs = append(errs, err)
		}
	}

	for cfg, vals := range live {
		c.dyn.SetVariables(cfg, vals)
	}
	changes := make([]notify.Change, len(updates))
	for i, u := range updates {
		changes[i] = notify.Change{
			Path:     u.v.key.Path(),
			Type:     notify.ChangeSet,
			OldValue: u.v.swap(u.value),
			NewValue: u.value,
			Source:   sourceSet,
		}
	}

	vars := make([]*Variable, len(updates))
	for i, u := range updates {
		vars[i] = u.v
	}
	c.publishAll(vars, changes)
	return errors.Join(errs...)
}

// GetVariable returns the live value of a variable. An unknown key logs a
// warning and returns nil, false.
func (c *Config) GetVariable(key Key) (any, bool) {
	e, ok := c.dyn.GetVariable(key.ConfigName(), key.Name())
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Variable returns the registered variable of a key.
func (c *Config) Variable(key Key) (*Variable, bool) {
	v := c.lookup(key)
	return v, v != nil
}

// DeleteVariable unregisters a variable. Its persisted string, if any, is
// left in place.
func (c *Config) DeleteVariable(key Key) bool {
	c.mu.Lock()
	v, ok := c.variables[key.ConfigName()][key.Name()]
	if ok {
		delete(c.variables[key.ConfigName()], key.Name())
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("variable %s is not registered", key)
		return false
	}
	c.dyn.DeleteVariable(key.ConfigName(), key.Name())

	old := v.Value()
	v.publish(notify.Change{
		Path:     v.key.Path(),
		Type:     notify.ChangeDelete,
		OldValue: old,
		Source:   sourceDelete,
	})
	c.notifier.NotifyDelete(v.key.Path(), old, sourceDelete)
	return true
}

// DeleteVariables unregisters several variables and returns how many were
// registered.
func (c *Config) DeleteVariables(keys ...Key) int {
	n := 0
	for _, k := range keys {
		if c.DeleteVariable(k) {
			n++
		}
	}
	return n
}

// Subscribe registers an observer for every variable change.
func (c *Config) Subscribe(observer notify.Observer) *notify.Subscription {
	return c.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for changes at or below path, such as
// "app" or "app/Window".
func (c *Config) SubscribePath(path string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribePath(path, observer)
}

func (c *Config) lookup(key Key) *Variable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variables[key.ConfigName()][key.Name()]
}

// fileBacked returns the file-backed variables of a configuration accepted
// by match, ordered by path.
func (c *Config) fileBacked(name string, match func(Key) bool) []*Variable {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Variable
	for _, v := range c.variables[name] {
		if v.key.SaveToFile() && (match == nil || match(v.key)) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Path() < out[j].key.Path() })
	return out
}

// resync reloads live values of file-backed variables from the file store
// after the custom document was replaced or reset. Options that are gone
// from both documents fall back to the variable's default value.
func (c *Config) resync(name string, ct notify.ChangeType, source string, match func(Key) bool) error {
	var (
		errs    []error
		changed []*Variable
		changes []notify.Change
	)

	for _, v := range c.fileBacked(name, match) {
		key := v.key
		s, found, err := c.files.Lookup(name, key.Section(), key.Name(), false)
		if err != nil {
			c.log.Critical("re-syncing %q: %v; live values no longer match the files", name, err)
			return err
		}

		value := v.DefaultValue()
		if found {
			if value, err = c.decode(v, s); err != nil {
				c.log.Error("reading %s from %q: %v", key, s, err)
				errs = append(errs, fmt.Errorf("reading %s: %w", key, err))
				continue
			}
		}
		if value == nil || reflect.DeepEqual(value, v.Value()) {
			continue
		}

		c.dyn.SetVariable(name, key.Name(), value)
		changed = append(changed, v)
		changes = append(changes, notify.Change{
			Path:     key.Path(),
			Type:     ct,
			OldValue: v.swap(value),
			NewValue: value,
			Source:   source,
		})
	}

	c.publishAll(changed, changes)
	return errors.Join(errs...)
}

// publishAll notifies each variable's own observers, then hands the whole
// set to the facade observers.
func (c *Config) publishAll(vars []*Variable, changes []notify.Change) {
	batch := c.notifier.NewBatch()
	for i, v := range vars {
		v.publish(changes[i])
		batch.Add(changes[i])
	}
	if n := batch.Commit(); n > 0 {
		c.log.Debug("delivered %d changes", n)
	}
}

// encode serializes a value with the variable's handler, or for an untyped
// variable with the handler of the value's own type.
func (c *Config) encode(v *Variable, value any) (string, error) {
	h := v.handler
	if h == nil {
		var err error
		if h, err = c.handlers.Get(reflect.TypeOf(value)); err != nil {
			return "", err
		}
	}
	return h.Serialize(value)
}

// decode parses a persisted string. An untyped variable is parsed as the
// type of its current value when that type has a handler, else kept as is.
func (c *Config) decode(v *Variable, s string) (any, error) {
	if v.handler != nil {
		return v.handler.Deserialize(s)
	}
	if cur := v.Value(); cur != nil {
		if h, err := c.handlers.Get(reflect.TypeOf(cur)); err == nil {
			return h.Deserialize(s)
		}
	}
	return s, nil
}

// handleFileChange reloads a custom file edited outside the process.
func (c *Config) handleFileChange(event watcher.Event) {
	c.mu.Lock()
	name, ok := c.customPaths[event.Path]
	c.mu.Unlock()
	if !ok {
		return
	}

	dirty, err := c.files.Dirty(name)
	if err != nil {
		return
	}
	if dirty {
		c.log.Warn("%s changed on disk but %q has unsaved edits; not reloading", event.Path, name)
		return
	}

	c.log.Info("reloading %q after %s of %s", name, event.Op, event.Path)
	if err := c.LoadCustomConfigFromFile(name); err != nil {
		c.log.Error("reloading %q: %v", name, err)
	}
}

func entrySection(k Key) string {
	if k.SaveToFile() {
		return k.Section()
	}
	return ""
}
