// Package registry implements the module-owned Registry value called for
// in spec §9: a replacement for a single process-wide global struct.
// Modules populate a Registry during init and the rest of the program
// reads it thereafter; tests construct their own Registry instead of
// touching package-level state.
package registry

import (
	"fmt"
	"sync"
)

// Registry is a named lookup table for one capability kind (codec,
// filter, device driver, MNAT strategy, ...). Mutation is expected only
// during module init/close on the main thread; Get is safe for
// concurrent readers once registration has settled.
type Registry[T any] struct {
	mu    sync.RWMutex
	byKey map[string]T
	order []string
}

func New[T any]() *Registry[T] {
	return &Registry[T]{byKey: make(map[string]T)}
}

// Register adds name -> value. Registering the same name twice is a
// programmer error (module init bugs), so it overwrites but preserves
// the original registration-order position, matching the "later modules
// may shadow earlier ones" allowance in spec §4.1.
func (r *Registry[T]) Register(name string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byKey[name] = value
}

// Unregister removes name, used to undo a module's registrations on
// module_close; a failed module init must leave no registrations, so
// callers should Unregister every name they added before returning an
// init error.
func (r *Registry[T]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[name]; !exists {
		return
	}
	delete(r.byKey, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byKey[name]
	return v, ok
}

// MustGet is a convenience for call sites that have already validated
// presence (e.g. codec negotiation, which only offers registered names).
func (r *Registry[T]) MustGet(name string) T {
	v, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry: %q not registered", name))
	}
	return v
}

// Names returns registered names in registration order, the deterministic
// discovery order spec §4.1 requires.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns values in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byKey[n])
	}
	return out
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
