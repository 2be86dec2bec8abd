// Package blackboard implements the typed, append-oriented shared memory an
// agent process reads from and publishes into. The blackboard preserves
// insertion order: binding a name already in use appends a new entry rather
// than overwriting, so the full history of values remains observable while
// name lookup resolves to the most recent entry.
//
// A blackboard is owned by exactly one agent process. All mutations within a
// process are serialized by the executor; the internal mutex exists so that
// event subscribers and inspectors can take consistent snapshots while an
// action runs.
package blackboard

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/arcline-ai/arcline/runtime/agent/domain"
)

type (
	// Entry is a single value recorded on the blackboard. Entries are
	// immutable once appended; Hidden is the only mutable flag and is guarded
	// by the blackboard mutex.
	Entry struct {
		// ID uniquely identifies the entry for explicit retrieval, including
		// after the entry has been hidden from planning snapshots.
		ID string
		// Name is the bind name, empty for anonymous objects.
		Name string
		// Value is the recorded value.
		Value any
		// Hidden excludes the entry from Objects() snapshots used by the
		// planner while keeping it retrievable by ID.
		Hidden bool
	}

	// Blackboard is the ordered, typed store of values and boolean conditions
	// for one agent process.
	Blackboard struct {
		mu         sync.RWMutex
		types      *domain.Registry
		entries    []*Entry
		names      map[string]*Entry // latest entry per bind name
		conditions map[string]bool
		observer   func(Entry)
	}
)

// New returns an empty blackboard using types for assignability decisions.
// A nil registry is replaced with an empty one so purely reflective use
// (LastOf, generic lookups) works without domain registration.
func New(types *domain.Registry) *Blackboard {
	if types == nil {
		types = domain.NewRegistry()
	}
	return &Blackboard{
		types:      types,
		names:      make(map[string]*Entry),
		conditions: make(map[string]bool),
	}
}

// Types returns the domain registry the blackboard resolves types against.
func (b *Blackboard) Types() *domain.Registry { return b.types }

// Observe registers a callback invoked after every appended entry, named or
// anonymous. At most one observer is supported; the executor uses it to turn
// appends into published events. The callback runs outside the blackboard
// lock, so it may read the blackboard freely.
func (b *Blackboard) Observe(fn func(Entry)) {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
}

// Bind appends v as a new entry under name and points name lookup at it.
// Prior entries with the same name remain in Objects(); lookup sees the
// latest. Returns the appended entry's ID.
func (b *Blackboard) Bind(name string, v any) string {
	b.mu.Lock()
	e := &Entry{ID: uuid.NewString(), Name: name, Value: v}
	b.entries = append(b.entries, e)
	b.names[name] = e
	observer := b.observer
	b.mu.Unlock()
	if observer != nil {
		observer(*e)
	}
	return e.ID
}

// AddObject appends v as an anonymous entry and returns its ID.
func (b *Blackboard) AddObject(v any) string {
	b.mu.Lock()
	e := &Entry{ID: uuid.NewString(), Value: v}
	b.entries = append(b.entries, e)
	observer := b.observer
	b.mu.Unlock()
	if observer != nil {
		observer(*e)
	}
	return e.ID
}

// Get returns the value most recently bound under name.
func (b *Blackboard) Get(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.names[name]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetByID retrieves an entry by ID, including hidden entries.
func (b *Blackboard) GetByID(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e.ID == id {
			return *e, true
		}
	}
	return Entry{}, false
}

// Last returns the most recently inserted visible value assignable to the
// named domain type, or nil when no such value exists.
func (b *Blackboard) Last(typeName string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if e.Hidden {
			continue
		}
		if b.types.ValueAssignableTo(e.Value, typeName) {
			return e.Value
		}
	}
	return nil
}

// LastOf returns the most recently inserted visible value whose Go type is
// assignable to T, or the zero value and false. It does not consult the
// domain registry, so it works for unregistered helper types.
func LastOf[T any](b *Blackboard) (T, bool) {
	var zero T
	want := reflect.TypeOf(&zero).Elem()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if e.Hidden || e.Value == nil {
			continue
		}
		rt := reflect.TypeOf(e.Value)
		if rt.AssignableTo(want) {
			return e.Value.(T), true
		}
		if want.Kind() != reflect.Pointer && rt.Kind() == reflect.Pointer && rt.Elem().AssignableTo(want) {
			return reflect.ValueOf(e.Value).Elem().Interface().(T), true
		}
	}
	return zero, false
}

// Objects returns a snapshot of the visible values in insertion order.
// Readers never observe partial writes: the slice is copied under the lock.
func (b *Blackboard) Objects() []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]any, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Hidden {
			continue
		}
		out = append(out, e.Value)
	}
	return out
}

// Entries returns a snapshot of all entries, hidden included, in insertion
// order. Used for persistence and inspection.
func (b *Blackboard) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	for i, e := range b.entries {
		out[i] = *e
	}
	return out
}

// SetCondition records a named boolean condition. Setting a condition is
// idempotent and independent of the object list.
func (b *Blackboard) SetCondition(name string, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conditions[name] = value
}

// GetCondition returns the stored value for name. The second return reports
// whether the condition has been set at all.
func (b *Blackboard) GetCondition(name string) (bool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.conditions[name]
	return v, ok
}

// Conditions returns a snapshot of the stored conditions.
func (b *Blackboard) Conditions() map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]bool, len(b.conditions))
	for k, v := range b.conditions {
		out[k] = v
	}
	return out
}

// Hide marks the newest visible entry holding v (compared by interface
// equality, falling back to pointer identity) as invisible to planning
// snapshots. The entry remains retrievable by ID. Returns false when no
// matching entry exists.
func (b *Blackboard) Hide(v any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if e.Hidden {
			continue
		}
		if sameValue(e.Value, v) {
			e.Hidden = true
			return true
		}
	}
	return false
}

// Clear removes all entries and conditions.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.names = make(map[string]*Entry)
	b.conditions = make(map[string]bool)
}

// Spawn returns a child blackboard seeded with a snapshot of the parent's
// entries and conditions. Writes to the child are isolated from the parent
// and vice versa.
func (b *Blackboard) Spawn() *Blackboard {
	b.mu.RLock()
	defer b.mu.RUnlock()
	child := New(b.types)
	child.entries = make([]*Entry, len(b.entries))
	for i, e := range b.entries {
		copied := *e
		child.entries[i] = &copied
		if copied.Name != "" {
			child.names[copied.Name] = child.entries[i]
		}
	}
	for k, v := range b.conditions {
		child.conditions[k] = v
	}
	return child
}

// Len returns the number of entries, hidden included.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Blackboard) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("blackboard(%d entries, %d conditions)", len(b.entries), len(b.conditions))
}

func sameValue(a, b any) (eq bool) {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.IsValid() && bv.IsValid() && av.Kind() == reflect.Pointer && bv.Kind() == reflect.Pointer {
		return av.Pointer() == bv.Pointer()
	}
	// Uncomparable values never match.
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
