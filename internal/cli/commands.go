package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sipagent/internal/errs"
)

// Handler executes one interactive command with its argument string
// (empty if the command takes none).
type Handler func(ctx context.Context, arg string) (string, error)

// Registry is the interactive command table spec.md §6 names: a
// canonical core set (dial/answer/hangup/mute/audio_debug/video_debug/
// callstat/uastat/reginfo/quit) plus whatever application modules add
// (in_band_dtmf_send, augain, http_get, autodial, ...).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Run parses "command arg..." and dispatches it, matching spec.md
// §6's long-form command convention.
func (r *Registry) Run(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	fields := strings.SplitN(line, " ", 2)
	name := fields[0]
	arg := ""
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return "", errs.New(errs.NotFound, fmt.Sprintf("unknown command %q", name))
	}
	return h(ctx, arg)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}
