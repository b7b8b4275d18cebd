package module

import (
	"log/slog"

	"sipagent/internal/eventbus"
	"sipagent/internal/stream"
)

// StatsLookup resolves a closed call's stream stats so rtcpsummary can
// report them; the caller (internal/call's owner) supplies this since
// Module has no reference to the live call table.
type StatsLookup func(callID string) (stream.Stats, bool)

// NewRTCPSummary builds the rtcpsummary application module: a summary
// line printed on CallClosed if any RTCP-equivalent traffic was seen.
// Grounded on original_source/modules/rtcpsummary/rtcpsummary.c's
// print_rtcp_summary_line, adapted from RTCP-specific counters (which
// this repo's RTP transport does not separately track) to the
// stream.Stats counters already collected per call.
func NewRTCPSummary(bus *eventbus.Bus, lookup StatsLookup, logger *slog.Logger) Module {
	var sub *eventbus.Subscription
	return Module{
		Name: "rtcpsummary",
		Type: "application",
		Init: func() error {
			sub = bus.Subscribe(func(ev eventbus.Event) {
				if ev.Type != eventbus.CallClosed {
					return
				}
				st, ok := lookup(ev.CallID)
				if !ok || (st.TXPackets.Load() == 0 && st.RXPackets.Load() == 0) {
					logger.Info("EX=sipagent;ERROR=no stream stats collected;", "call_id", ev.CallID)
					return
				}
				logger.Info("call summary",
					"call_id", ev.CallID,
					"packets_rx", st.RXPackets.Load(),
					"packets_tx", st.TXPackets.Load(),
					"bytes_rx", st.RXBytes.Load(),
					"bytes_tx", st.TXBytes.Load(),
					"concealed", st.Concealed.Load(),
					"discarded", st.Discarded.Load(),
				)
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
