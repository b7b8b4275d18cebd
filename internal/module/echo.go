package module

import (
	"log/slog"

	"sipagent/internal/eventbus"
)

// EchoHook wires a call's render output back into its own capture
// input once established; the actual stream.Bridge construction is
// owned by whatever built the call's AudioStream (it alone knows the
// stream's Config), so this module only triggers it.
type EchoHook func(callID string)

// NewEcho builds the echo application module: every established call
// has its audio looped back to itself via a stream.Bridge device pair.
// Grounded on original_source/modules/echo/echo.c (REQUIRES: aubridge;
// tracks one struct session per call_in, relays DTMF, tears down on
// CALL_CLOSED) — the session-per-call bookkeeping there is replaced by
// this repo's event-bus subscription plus the hook closure, since the
// call object itself already owns its lifetime.
func NewEcho(bus *eventbus.Bus, hook EchoHook, logger *slog.Logger) Module {
	var sub *eventbus.Subscription
	return Module{
		Name: "echo",
		Type: "application",
		Init: func() error {
			sub = bus.Subscribe(func(ev eventbus.Event) {
				if ev.Type != eventbus.CallEstablished {
					return
				}
				logger.Debug("echo: looping call audio", "call_id", ev.CallID)
				hook(ev.CallID)
			})
			return nil
		},
		Close: func() error {
			if sub != nil {
				sub.Unsubscribe()
			}
			return nil
		},
	}
}
