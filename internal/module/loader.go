// Package module implements C13: a dynamically-loaded component
// registers itself into the relevant registry (codec, filter, device,
// MNAT, event bus) from an init function, and releases its resources
// from a matching close function. Grounded on
// original_source/src/module.c's mod_export{name, type, init, close}
// contract, rendered as two plain Go funcs per module instead of a
// loaded shared object, since this repo has no dynamic-loading
// requirement to satisfy (spec.md's module surface is about the
// init/close lifecycle contract, not .so loading).
package module

import (
	"fmt"
	"sync"
)

// Module is the Go analogue of baresip's mod_export: a name, a type
// tag (spec.md groups modules as "audio"/"video"/"application"), and
// init/close funcs that wire the module into whatever registries it
// owns (codec.Registry, audio filter Chain, media.Registry, etc. are
// passed in via closures captured when the Module value is built).
type Module struct {
	Name string
	Type string
	Init func() error
	Close func() error
}

// Loader owns the process's module set: it guarantees init/close each
// run at most once per module and in a well-defined order (load order
// forward, close order reverse — the same convention baresip's
// mod_close loop follows).
type Loader struct {
	mu      sync.Mutex
	loaded  []Module
	byName  map[string]bool
}

func NewLoader() *Loader {
	return &Loader{byName: make(map[string]bool)}
}

// Load runs m.Init and records the module for later Close. The `-m`
// flag and the `module`/`module_app`/`module_tmp` config keys are not
// routed here: cmd/sipagent parses them but loads no module by name.
func (l *Loader) Load(m Module) error {
	l.mu.Lock()
	if l.byName[m.Name] {
		l.mu.Unlock()
		return fmt.Errorf("module: %q already loaded", m.Name)
	}
	l.mu.Unlock()

	if m.Init != nil {
		if err := m.Init(); err != nil {
			return fmt.Errorf("module %q: init failed: %w", m.Name, err)
		}
	}

	l.mu.Lock()
	l.loaded = append(l.loaded, m)
	l.byName[m.Name] = true
	l.mu.Unlock()
	return nil
}

// CloseAll runs every loaded module's Close in reverse load order.
func (l *Loader) CloseAll() {
	l.mu.Lock()
	loaded := append([]Module(nil), l.loaded...)
	l.loaded = nil
	l.byName = make(map[string]bool)
	l.mu.Unlock()

	for i := len(loaded) - 1; i >= 0; i-- {
		m := loaded[i]
		if m.Close != nil {
			_ = m.Close()
		}
	}
}

func (l *Loader) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.loaded))
	for i, m := range l.loaded {
		names[i] = m.Name
	}
	return names
}
