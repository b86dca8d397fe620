package config

import (
	"reflect"

	"github.com/dshills/layerconf/internal/config/notify"
)

// DefaultSection is the section used by keys that do not name one.
const DefaultSection = "Default"

// Key declares a configuration variable. Keys are immutable and comparable,
// so they can be used as map keys.
type Key struct {
	configName string
	name       string
	section    string
	typ        reflect.Type
	saveToFile bool
	autoSave   bool
}

// KeyOption configures a Key.
type KeyOption func(*Key)

// WithSection sets the INI section the variable is stored under.
func WithSection(section string) KeyOption {
	return func(k *Key) {
		if section != "" {
			k.section = section
		}
	}
}

// WithType declares the type every value of the variable must have.
// A nil type leaves the key untyped.
func WithType(t reflect.Type) KeyOption {
	return func(k *Key) {
		k.typ = t
	}
}

// TypeOf declares T as the variable's type.
func TypeOf[T any]() KeyOption {
	return WithType(reflect.TypeFor[T]())
}

// SaveToFile makes the variable file-backed: its value is mirrored into
// the custom document of its configuration.
func SaveToFile() KeyOption {
	return func(k *Key) {
		k.saveToFile = true
	}
}

// WithAutoSave controls whether writes of a file-backed variable reach the
// disk immediately. It defaults to true; with false the edit is staged in
// memory until the custom file is saved.
func WithAutoSave(enable bool) KeyOption {
	return func(k *Key) {
		k.autoSave = enable
	}
}

// NewKey declares variable name of configuration configName.
func NewKey(configName, name string, opts ...KeyOption) Key {
	k := Key{
		configName: configName,
		name:       name,
		section:    DefaultSection,
		autoSave:   true,
	}
	for _, opt := range opts {
		opt(&k)
	}
	return k
}

// ConfigName returns the name of the configuration the key belongs to.
func (k Key) ConfigName() string { return k.configName }

// Name returns the variable name, unique within its configuration.
func (k Key) Name() string { return k.name }

// Section returns the INI section of the persisted value.
func (k Key) Section() string { return k.section }

// Type returns the declared value type, or nil for an untyped key.
func (k Key) Type() reflect.Type { return k.typ }

// SaveToFile reports whether the value is persisted in the custom file.
func (k Key) SaveToFile() bool { return k.saveToFile }

// AutoSave reports whether a change is written to disk immediately rather
// than staged until SaveCustomConfigToFile.
func (k Key) AutoSave() bool { return k.autoSave }

// Path returns the change path of the key: "config/section/name".
func (k Key) Path() string {
	return notify.JoinPath(k.configName, k.section, k.name)
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Path()
}

func (k Key) valid() bool {
	return k.configName != "" && k.name != ""
}
