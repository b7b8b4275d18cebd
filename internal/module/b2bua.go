package module

import (
	"context"
	"log/slog"

	"sipagent/internal/call"
	"sipagent/internal/eventbus"
)

// CallLookup resolves a call by id, and OutboundTarget derives the
// leg-out URI from the inbound call, for the b2bua module below.
type CallLookup func(callID string) (*call.Call, bool)
type OutboundTarget func(inbound *call.Call) string

// Connector places the outbound leg of a b2bua session; in practice an
// adapter over ua.UA.Connect.
type Connector interface {
	Connect(ctx context.Context, target string) (*call.Call, error)
}

// NewB2BUA builds the b2bua application module: every inbound call
// gets a freshly dialled outbound leg paired to it; establishing
// either leg answers the other, and closing either hangs up the other.
// Grounded on original_source/modules/b2bua/b2bua.c's
// session{call_in, call_out} pairing and its call_event_handler; the
// session object itself is folded into call.Call.SetPartner, driven via
// the event bus instead of an owned `struct session` list. This module
// does not handle DTMF events: a digit reaches the partner leg only
// where a caller invokes call.Call.HandleDTMF with a relay func.
func NewB2BUA(ctx context.Context, bus *eventbus.Bus, lookup CallLookup, target OutboundTarget, connector Connector, logger *slog.Logger) Module {
	var sub *eventbus.Subscription
	return Module{
		Name: "b2bua",
		Type: "application",
		Init: func() error {
			sub = bus.Subscribe(func(ev eventbus.Event) {
				switch ev.Type {
				case eventbus.CallIncoming:
					in, ok := lookup(ev.CallID)
					if !ok {
						return
					}
					go pairOutboundLeg(ctx, in, target, connector, logger)
				case eventbus.CallEstablished:
					c, ok := lookup(ev.CallID)
					if !ok {
						return
					}
					if partner := partnerOf(c); partner != nil {
						_ = partner.Answer(ctx)
					}
				case eventbus.CallClosed:
					c, ok := lookup(ev.CallID)
					if !ok {
						return
					}
					if partner := partnerOf(c); partner != nil {
						code, reason := c.CloseCode()
						partner.Close(code, reason)
					}
				}
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

func pairOutboundLeg(ctx context.Context, in *call.Call, target OutboundTarget, connector Connector, logger *slog.Logger) {
	out, err := connector.Connect(ctx, target(in))
	if err != nil {
		logger.Warn("b2bua: outbound leg failed", "error", err, "call_id", in.ID())
		in.Close(480, "leg-out failed")
		return
	}
	in.SetPartner(out)
	out.SetPartner(in)
}

// partnerOf exists so this file doesn't need to reach into call.Call's
// unexported partner field; call.Call exposes it via HandleDTMF's
// relay callback, but b2bua needs direct access for answer/hangup, so
// it is exported as Call.Partner in call.go's public surface.
func partnerOf(c *call.Call) *call.Call {
	return c.Partner()
}
