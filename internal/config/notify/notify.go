// Package notify provides change notification for configuration values.
//
// Observers are plain closures. Delivery is synchronous on the notifying
// goroutine and happens after the notifier's lock is released, so an
// observer may subscribe, unsubscribe or trigger further changes.
package notify

import (
	"sort"
	"strings"
	"sync"
)

// Separator joins the segments of a change path:
// configuration, section and variable name.
const Separator = "/"

// JoinPath builds a change path from its segments.
func JoinPath(parts ...string) string {
	return strings.Join(parts, Separator)
}

// ChangeType tells what happened to a variable.
type ChangeType int

const (
	// ChangeSet is an explicit assignment.
	ChangeSet ChangeType = iota

	// ChangeDelete is an unregistration.
	ChangeDelete

	// ChangeReset indicates a value was reset to its default.
	ChangeReset

	// ChangeReload indicates a value changed because its file was reloaded.
	ChangeReload
)

// String implements fmt.Stringer.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReset:
		return "reset"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one update of a variable.
type Change struct {
	// Path is "config/section/name".
	Path string

	// Type classifies the change.
	Type ChangeType

	// OldValue is the value before the change, possibly nil.
	OldValue any

	// NewValue is the new value (nil for deletes).
	NewValue any

	// Source names the operation that produced the change.
	Source string
}

// Observer receives changes.
type Observer func(change Change)

// Subscription is a handle for removing an observer.
type Subscription struct {
	id       uint64
	path     string
	notifier *Notifier
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Path returns the subscribed path; empty for global subscriptions.
func (s *Subscription) Path() string {
	return s.path
}

type entry struct {
	path     string
	global   bool
	observer Observer
}

// Notifier manages change subscriptions.
type Notifier struct {
	mu        sync.RWMutex
	observers map[uint64]entry
	nextID    uint64
	closed    bool
}

// New returns a Notifier without subscriptions.
func New() *Notifier {
	return &Notifier{
		observers: make(map[uint64]entry),
	}
}

// Subscribe registers an observer for every path.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add(entry{global: true, observer: observer})
}

// SubscribePath registers an observer for changes to a path and everything
// below it. Subscribing to "app" receives changes to "app/Window/width".
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	return n.add(entry{path: path, observer: observer})
}

func (n *Notifier) add(e entry) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = e

	return &Subscription{id: id, path: e.path, notifier: n}
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

// Notify delivers a change to every matching observer in subscription order.
func (n *Notifier) Notify(change Change) {
	for _, obs := range n.matching(change.Path) {
		obs(change)
	}
}

// NotifySet delivers a ChangeSet.
func (n *Notifier) NotifySet(path string, oldValue, newValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// NotifyDelete delivers a ChangeDelete.
func (n *Notifier) NotifyDelete(path string, oldValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeDelete,
		OldValue: oldValue,
		Source:   source,
	})
}

// Close drops all subscriptions; later notifications are ignored.
// It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.observers = make(map[uint64]entry)
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// matching collects observers for path under the read lock.
func (n *Notifier) matching(path string) []Observer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil
	}

	ids := make([]uint64, 0, len(n.observers))
	for id, e := range n.observers {
		if e.global || e.path == path || isParentPath(e.path, path) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = n.observers[id].observer
	}
	return out
}

// isParentPath reports whether child is parent or lies below it.
// e.g., "app/Window" is parent of "app/Window/width".
func isParentPath(parent, child string) bool {
	if len(parent) >= len(child) {
		return false
	}
	if parent == "" {
		return true
	}
	return strings.HasPrefix(child, parent) && strings.HasPrefix(child[len(parent):], Separator)
}

// Batch queues changes of a multi-value operation so that observers see
// them only once the operation is complete.
type Batch struct {
	n       *Notifier
	mu      sync.Mutex
	pending []Change
}

// NewBatch starts an empty batch bound to n.
func (n *Notifier) NewBatch() *Batch {
	return &Batch{n: n}
}

// Add queues a change.
func (b *Batch) Add(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, change)
}

// Commit delivers the queued changes in the order they were added, empties
// the batch and returns how many were delivered.
func (b *Batch) Commit() int {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, change := range pending {
		b.n.Notify(change)
	}
	return len(pending)
}
