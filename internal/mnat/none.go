package mnat

import (
	"context"
	"net"
)

// noneStrategy is the NONE strategy: local socket addresses are used
// verbatim in SDP (spec §4.8).
type noneStrategy struct{}

func NewNone() Strategy { return noneStrategy{} }

func (noneStrategy) Tag() StrategyTag { return None }

func (noneStrategy) Start(_ context.Context, m *Media, established func(error)) error {
	if m.RTPSocket != nil {
		m.ExternalRTP = m.RTPSocket.LocalAddr()
	}
	if m.RTCPSocket != nil {
		m.ExternalRTCP = m.RTCPSocket.LocalAddr()
	}
	established(nil)
	return nil
}

func (noneStrategy) Update(context.Context, *Media, net.Addr, net.Addr) error {
	return nil
}

func (noneStrategy) Stop(*Media) {}
