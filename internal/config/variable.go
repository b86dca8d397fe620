package config

import (
	"sync"

	"github.com/dshills/layerconf/internal/config/handler"
	"github.com/dshills/layerconf/internal/config/notify"
	"github.com/dshills/layerconf/internal/logging"
)

// Variable binds a Key to a live value.
//
// Variables returned by Config.AddVariable route SetValue through the
// facade, so the dynamic store and the custom document stay in step.
type Variable struct {
	key     Key
	handler handler.Handler
	owner   *Config
	log     *logging.Logger

	mu           sync.Mutex
	value        any
	defaultValue any

	notifier *notify.Notifier
}

// NewVariable creates a detached variable. defaultValue falls back to value
// when nil. Both must have the key's type, if it declares one.
func NewVariable(key Key, value, defaultValue any) (*Variable, error) {
	if err := handler.Check(key.Type(), value); err != nil {
		return nil, err
	}
	if err := handler.Check(key.Type(), defaultValue); err != nil {
		return nil, err
	}
	if defaultValue == nil {
		defaultValue = value
	}
	return &Variable{
		key:          key,
		log:          logging.Default(),
		value:        value,
		defaultValue: defaultValue,
		notifier:     notify.New(),
	}, nil
}

// Key returns the variable's declaration.
func (v *Variable) Key() Key { return v.key }

// Handler returns the handler resolved for the key's type, or nil for an
// untyped key.
func (v *Variable) Handler() handler.Handler { return v.handler }

// Value returns the current value.
func (v *Variable) Value() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// DefaultValue returns the value the variable falls back to.
func (v *Variable) DefaultValue() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.defaultValue
}

// SetValue changes the value and notifies subscribers. A nil value is
// ignored with a warning. A value of the wrong type is rejected.
func (v *Variable) SetValue(value any) error {
	if v.owner != nil {
		return v.owner.SetVariable(v.key, value)
	}
	if value == nil {
		v.log.Warn("ignoring nil value for %s", v.key)
		return nil
	}
	if err := handler.Check(v.key.Type(), value); err != nil {
		return err
	}
	old := v.swap(value)
	v.publish(notify.Change{
		Path:     v.key.Path(),
		Type:     notify.ChangeSet,
		OldValue: old,
		NewValue: value,
		Source:   sourceSet,
	})
	return nil
}

// Reset sets the value back to the default value.
func (v *Variable) Reset() error {
	return v.SetValue(v.DefaultValue())
}

// Subscribe registers an observer called after every change of the value.
// Observers run on the changing goroutine with no locks held.
func (v *Variable) Subscribe(observer notify.Observer) *notify.Subscription {
	return v.notifier.Subscribe(observer)
}

func (v *Variable) swap(value any) any {
	v.mu.Lock()
	defer v.mu.Unlock()
	old := v.value
	v.value = value
	return old
}

func (v *Variable) publish(change notify.Change) {
	v.notifier.Notify(change)
}
