package ua

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"sipagent/internal/errs"
	"sipagent/internal/eventbus"
)

// minRestartDelay is original_source/modules/serreg/serreg.c's
// MIN_RESTART_DELAY (31s): the minimum time between serreg restart
// probes, avoiding registration storms on flapping connectivity.
const minRestartDelay = 31 * time.Second

// Group is C11: the process-wide collection of UAs. It routes incoming
// requests to the right UA and, in serial-registration mode, only
// keeps the current-priority set of UAs registered.
type Group struct {
	bus *eventbus.Bus

	mu  sync.Mutex
	uas []*UA

	serregEnabled bool
	prio          int
	maxPrio       int
	ready         bool
	failCount     int
	restartTimer  *time.Timer
	randSrc       *rand.Rand
}

func NewGroup(bus *eventbus.Bus) *Group {
	return &Group{bus: bus, randSrc: rand.New(rand.NewSource(1))}
}

func (g *Group) Add(u *UA) {
	g.mu.Lock()
	g.uas = append(g.uas, u)
	if u.Account.Prio > g.maxPrio {
		g.maxPrio = u.Account.Prio
	}
	g.mu.Unlock()
}

// AllUAs returns a snapshot of every UA in the group, for status
// commands like `uastat`.
func (g *Group) AllUAs() []*UA {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*UA, len(g.uas))
	copy(out, g.uas)
	return out
}

func (g *Group) Remove(u *UA) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, x := range g.uas {
		if x == u {
			g.uas = append(g.uas[:i], g.uas[i+1:]...)
			return
		}
	}
}

// Find locates the UA for an incoming request's To-AOR, per spec
// §4.10's ordered match: (1) exact AOR match, (2) a catchall=true UA,
// (3) 404.
func (g *Group) Find(toAOR string) (*UA, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.uas {
		if u.Account.AOR == toAOR {
			return u, nil
		}
	}
	for _, u := range g.uas {
		if u.Catchall() {
			return u, nil
		}
	}
	return nil, errs.New(errs.NotFound, fmt.Sprintf("no UA matches %q", toAOR))
}

func (g *Group) emit(t eventbus.Type, reason string) {
	if g.bus == nil {
		return
	}
	ev := eventbus.New(t, "", "")
	ev.Reason = reason
	g.bus.Publish(ev)
}

// EnableSerreg turns on serial-registration mode and registers the
// prio-0 UA set, per original_source/modules/serreg/serreg.c.
func (g *Group) EnableSerreg(ctx context.Context) {
	g.mu.Lock()
	g.serregEnabled = true
	g.prio = 0
	g.mu.Unlock()
	g.registerPrio(ctx, 0)
}

func (g *Group) uasAtPrio(prio int) []*UA {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*UA
	for _, u := range g.uas {
		if u.Account.RegInt > 0 && u.Account.Prio == prio {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (g *Group) registerPrio(ctx context.Context, prio int) {
	for _, u := range g.uasAtPrio(prio) {
		u.Register(ctx)
	}
}

func (g *Group) unregisterPrio(prio int) {
	for _, u := range g.uasAtPrio(prio) {
		u.Unregister()
	}
}

// CheckRegistrations is the serreg tick: call after any RegisterOk/
// RegisterFail event to decide whether to advance to the next
// priority, fall back to a lower one, or announce readiness.
// Mirrors serreg.c's check_registrations/ua_event handler.
func (g *Group) CheckRegistrations(ctx context.Context) {
	g.mu.Lock()
	if !g.serregEnabled {
		g.mu.Unlock()
		return
	}
	prio := g.prio
	g.mu.Unlock()

	var n, f, r int
	for _, u := range g.uasAtPrio(prio) {
		n++
		switch u.RegState() {
		case RegFailed:
			f++
		case RegRegistered:
			r++
		}
	}

	switch {
	case n > 0 && n == f:
		// All of the current prio failed: advance to next prio.
		g.mu.Lock()
		g.failCount++
		next := g.prio + 1
		if next > g.maxPrio {
			next = 0 // wrap: retry from the top after a full sweep
		}
		g.unregisterPrioLocked(prio)
		g.prio = next
		fc := g.failCount
		g.mu.Unlock()
		g.scheduleRestart(ctx, fc)
	case f > 0:
		// Partial failure at current prio: stay put, let individual
		// RegClient backoff retry.
	case r == n && n > 0:
		g.mu.Lock()
		wasReady := g.ready
		g.ready = true
		cur := g.prio
		g.mu.Unlock()
		if !wasReady {
			g.emit(eventbus.ModuleEvent, fmt.Sprintf("%d useragent(s) with prio %d registered successfully", n, cur))
		}
	}

	// Fallback: if a lower-prio set becomes available again, probe it.
	if prio > 0 {
		g.mu.Lock()
		lowerReady := g.probeLowerPrioLocked(prio)
		g.mu.Unlock()
		if lowerReady {
			g.unregisterPrio(prio)
			g.mu.Lock()
			g.prio = 0
			g.ready = false
			g.mu.Unlock()
			g.registerPrio(ctx, 0)
		}
	}
}

func (g *Group) unregisterPrioLocked(prio int) {
	g.mu.Unlock()
	g.unregisterPrio(prio)
	g.mu.Lock()
}

// probeLowerPrioLocked is a placeholder hook for the explicit
// `fallback` probe spec.md §4.10 names; without a live probe
// mechanism wired in this scope it always reports not-ready, leaving
// serreg in its current priority until an operator-triggered probe is
// added.
func (g *Group) probeLowerPrioLocked(currentPrio int) bool {
	return false
}

// scheduleRestart arms the minimum-31s, randomized-exponential restart
// timer from serreg.c's failwait(): w = min(1800, 30*2^min(failc,6)) *
// a [0.5,1.0) jitter factor, floored at minRestartDelay.
func (g *Group) scheduleRestart(ctx context.Context, failCount int) {
	g.mu.Lock()
	if g.restartTimer != nil {
		g.restartTimer.Stop()
	}
	g.mu.Unlock()

	secs := math.Min(1800, 30*math.Pow(2, math.Min(float64(failCount), 6)))
	jitter := 0.5 + g.randSrc.Float64()*0.5
	delay := time.Duration(secs*jitter) * time.Second
	if delay < minRestartDelay {
		delay = minRestartDelay
	}

	g.mu.Lock()
	g.restartTimer = time.AfterFunc(delay, func() {
		g.mu.Lock()
		prio := g.prio
		g.mu.Unlock()
		g.registerPrio(ctx, prio)
	})
	g.mu.Unlock()
}
