package domain

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry holds the domain types known to an agent platform instance. It is
// initialized at platform start and read-mostly thereafter; registration after
// steady state is intended for tests only.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry returns an empty type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds a type to the registry. It fails when the name is already
// taken, a declared parent is unknown, or the parent chain would contain a
// cycle.
func (r *Registry) Register(t *Type) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("domain: type name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("domain: type %q already registered", t.Name)
	}
	for _, p := range t.Parents {
		if _, ok := r.types[p]; !ok {
			return fmt.Errorf("domain: type %q declares unknown parent %q", t.Name, p)
		}
	}
	r.types[t.Name] = t
	if err := r.checkAcyclicLocked(t.Name); err != nil {
		delete(r.types, t.Name)
		return err
	}
	return nil
}

// MustRegister registers the type and panics on error. Intended for
// package-level platform wiring where a registration failure is a programming
// error.
func (r *Registry) MustRegister(t *Type) *Type {
	if err := r.Register(t); err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsAssignable reports whether a value of type from can be used where a value
// of type to is expected. A type is assignable to itself, to any ancestor in
// its parent chain, and, for reflected types, to any type whose Go type the
// source Go type satisfies (interface implementation or direct
// assignability).
func (r *Registry) IsAssignable(from, to string) bool {
	if from == to {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.types[from]
	if !ok {
		return false
	}
	dst, ok := r.types[to]
	if !ok {
		return false
	}
	if src.Reflected() && dst.Reflected() {
		if goAssignable(src.goType, dst.goType) {
			return true
		}
	}
	return r.inheritsLocked(from, to)
}

// TypeOf resolves the registered type of a runtime value. Reflected types
// match by Go type (pointer indirection applied); the most specific match
// wins when several reflected types are satisfied. Dynamic types never match
// runtime values directly.
func (r *Registry) TypeOf(v any) (*Type, bool) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Exact match first.
	for _, t := range r.types {
		if t.goType == rt {
			return t, true
		}
	}
	// Fall back to assignability (interfaces).
	var candidates []*Type
	for _, t := range r.types {
		if t.Reflected() && goAssignable(rt, t.goType) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates[0], true
}

// ValueAssignableTo reports whether runtime value v satisfies the named type.
// For reflected targets the Go type decides; for dynamic targets the value's
// resolved type must inherit from the target.
func (r *Registry) ValueAssignableTo(v any, to string) bool {
	r.mu.RLock()
	dst, ok := r.types[to]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if dst.Reflected() {
		rt := reflect.TypeOf(v)
		for rt != nil && rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt == nil {
			return false
		}
		return goAssignable(rt, dst.goType)
	}
	src, ok := r.TypeOf(v)
	if !ok {
		return false
	}
	return r.IsAssignable(src.Name, to)
}

// inheritsLocked walks the parent chain of from looking for to. Callers hold
// at least a read lock.
func (r *Registry) inheritsLocked(from, to string) bool {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		t, ok := r.types[name]
		if !ok {
			continue
		}
		for _, p := range t.Parents {
			if p == to {
				return true
			}
			stack = append(stack, p)
		}
	}
	return false
}

// checkAcyclicLocked verifies the parent chain starting at name contains no
// cycle. Callers hold the write lock.
func (r *Registry) checkAcyclicLocked(name string) error {
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case 1:
			return fmt.Errorf("domain: parent cycle detected through %q", n)
		case 2:
			return nil
		}
		state[n] = 1
		if t, ok := r.types[n]; ok {
			for _, p := range t.Parents {
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		state[n] = 2
		return nil
	}
	return visit(name)
}

func goAssignable(src, dst reflect.Type) bool {
	if src == nil || dst == nil {
		return false
	}
	if src == dst || src.AssignableTo(dst) {
		return true
	}
	if dst.Kind() == reflect.Interface {
		if src.Implements(dst) {
			return true
		}
		return reflect.PointerTo(src).Implements(dst)
	}
	return false
}
