package ua

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"sipagent/internal/errs"
	"sipagent/internal/eventbus"
)

// RegState is the registration client's own state machine (spec §4.10
// implies this via RegisterOk/RegisterFail events; named states make
// the UA's reginfo command straightforward to implement).
type RegState int

const (
	RegIdle RegState = iota
	RegTrying
	RegRegistered
	RegFailed
)

// Registerer is the SIP-transaction surface a RegClient drives,
// satisfied by a thin adapter over github.com/emiago/sipgo's REGISTER
// transaction (or a test double). Keeping this as a narrow interface
// mirrors teacher's endpoints.SIPDialog seam.
type Registerer interface {
	// Register sends one REGISTER with the given expiry (0 = de-register)
	// and returns the server's granted expiry, or an error.
	Register(ctx context.Context, expirySeconds int) (grantedExpiry int, err error)
}

// RegClient owns one account's registration lifecycle: exponential
// backoff bounded by spec §8 property 6 (d_i ∈ [0.5·regint, 2·regint·
// min(64, 2^i)]), and automatic refresh at the granted interval.
type RegClient struct {
	acc  *Account
	reg  Registerer
	bus  *eventbus.Bus
	uaName string

	mu       sync.Mutex
	state    RegState
	failures int
	cancel   context.CancelFunc

	// rand is isolated per client so tests can substitute a
	// deterministic source without a global seed.
	rand *rand.Rand
}

func NewRegClient(acc *Account, reg Registerer, bus *eventbus.Bus, uaName string) *RegClient {
	return &RegClient{
		acc:    acc,
		reg:    reg,
		bus:    bus,
		uaName: uaName,
		rand:   rand.New(rand.NewSource(int64(len(acc.AOR)) + 1)),
	}
}

func (r *RegClient) State() RegState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start launches the register/refresh/retry loop; stop via Stop.
func (r *RegClient) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	go r.loop(ctx)
}

func (r *RegClient) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_, _ = r.reg.Register(context.Background(), 0) // best-effort de-register
}

func (r *RegClient) regint() int {
	if r.acc.RegInt > 0 {
		return r.acc.RegInt
	}
	return 3600
}

func (r *RegClient) loop(ctx context.Context) {
	for {
		r.setState(RegTrying)
		granted, err := r.reg.Register(ctx, r.regint())
		if err != nil {
			r.onFailure(err)
		} else {
			r.onSuccess()
			granted = r.clampGranted(granted)
		}

		var wait time.Duration
		if err != nil {
			wait = r.backoffDelay()
		} else {
			wait = time.Duration(granted) * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (r *RegClient) clampGranted(granted int) int {
	if granted <= 0 {
		return r.regint()
	}
	return granted
}

func (r *RegClient) onSuccess() {
	r.mu.Lock()
	r.state = RegRegistered
	r.failures = 0
	r.mu.Unlock()
	r.emit(eventbus.RegisterOk, "")
}

func (r *RegClient) onFailure(err error) {
	r.mu.Lock()
	r.state = RegFailed
	r.failures++
	r.mu.Unlock()
	r.emit(eventbus.RegisterFail, errs.KindOf(err).String())
}

func (r *RegClient) setState(s RegState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *RegClient) emit(t eventbus.Type, reason string) {
	if r.bus == nil {
		return
	}
	ev := eventbus.New(t, r.uaName, "")
	ev.Reason = reason
	r.bus.Publish(ev)
}

// backoffDelay implements spec §8 property 6: d_i ∈ [0.5·regint,
// 2·regint·min(64, 2^i)], i being the consecutive-failure count.
func (r *RegClient) backoffDelay() time.Duration {
	r.mu.Lock()
	i := r.failures
	r.mu.Unlock()

	regint := float64(r.regint())
	lower := 0.5 * regint
	mult := math.Min(64, math.Pow(2, float64(i)))
	upper := 2 * regint * mult

	span := upper - lower
	if span < 0 {
		span = 0
	}
	delay := lower + r.rand.Float64()*span
	return time.Duration(delay * float64(time.Second))
}
