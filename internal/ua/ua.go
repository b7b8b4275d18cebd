package ua

import (
	"context"
	"sync"

	"sipagent/internal/call"
	"sipagent/internal/errs"
	"sipagent/internal/eventbus"
)

// Dialer is the SIP-stack surface UA needs to place outbound calls,
// satisfied by an adapter over github.com/emiago/diago's NewDialog/
// Invite (see teacher's bridge/service.go inviteWithEarlyMedia).
type Dialer interface {
	Dial(ctx context.Context, target string) (call.Dialog, error)
}

// UA is C10: one SIP AOR identity, its registration client, and the
// calls currently open against it.
type UA struct {
	Account *Account
	bus     *eventbus.Bus
	dialer  Dialer
	reg     *RegClient

	mu    sync.Mutex
	calls map[string]*call.Call
	catchall bool
}

func New(acc *Account, reg Registerer, dialer Dialer, bus *eventbus.Bus) *UA {
	u := &UA{
		Account: acc,
		bus:     bus,
		dialer:  dialer,
		calls:   make(map[string]*call.Call),
	}
	u.reg = NewRegClient(acc, reg, bus, acc.AOR)
	return u
}

func (u *UA) Name() string { return u.Account.AOR }

func (u *UA) SetCatchall(v bool) { u.catchall = v }
func (u *UA) Catchall() bool     { return u.catchall }

// Register/Unregister start and stop the registration client, per
// spec §4.10's UA operations.
func (u *UA) Register(ctx context.Context) { u.reg.Start(ctx) }
func (u *UA) Unregister() {
	u.reg.Stop()
	u.emit(eventbus.Unregistering, "")
}

func (u *UA) RegState() RegState { return u.reg.State() }

// Connect places an outbound call to target, registers it in the
// UA's call table, and moves it IDLE -> OUTGOING.
func (u *UA) Connect(ctx context.Context, target string) (*call.Call, error) {
	dialog, err := u.dialer.Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	c := call.New(u.bus, u.Name(), dialog)
	if err := c.Dial(); err != nil {
		return nil, err
	}
	u.addCall(c)
	return c, nil
}

// BindIncoming registers a call created from an inbound INVITE (spec
// §4.9's IDLE -> INCOMING transition is driven by the caller, which
// owns the SIP-stack callback; UA just tracks the result).
func (u *UA) BindIncoming(c *call.Call) {
	u.addCall(c)
}

func (u *UA) addCall(c *call.Call) {
	u.mu.Lock()
	u.calls[c.ID()] = c
	u.mu.Unlock()
}

// Answer moves an INCOMING call to ESTABLISHED (spec §4.10's `answer`
// operation).
func (u *UA) Answer(ctx context.Context, c *call.Call) error {
	return c.Answer(ctx)
}

// Hangup closes a call and removes it from the UA's call table, per
// spec §4.9's "on entering CLOSED ... remove itself from its UA's call
// list".
func (u *UA) Hangup(c *call.Call, code int, reason string) {
	c.Close(code, reason)
	u.mu.Lock()
	delete(u.calls, c.ID())
	u.mu.Unlock()
}

// FindCall looks up a call by dialog id.
func (u *UA) FindCall(dialogID string) (*call.Call, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.calls[dialogID]
	return c, ok
}

func (u *UA) Calls() []*call.Call {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*call.Call, 0, len(u.calls))
	for _, c := range u.calls {
		out = append(out, c)
	}
	return out
}

func (u *UA) emit(t eventbus.Type, reason string) {
	if u.bus == nil {
		return
	}
	ev := eventbus.New(t, u.Name(), "")
	ev.Reason = reason
	u.bus.Publish(ev)
}

var errNotFound = errs.New(errs.NotFound, "no matching UA")
