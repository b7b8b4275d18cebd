package mnat

import (
	"context"
	"net"

	"github.com/pion/turn/v2"
)

// turnStrategy implements spec §4.8's TURN strategy: a TURN client per
// socket producing a relayed address, with a permission for the peer's
// address created once it is known from the SDP answer. Grounded on
// original_source/modules/turn/turn.c's turnc_alloc/turn_handler
// allocation-then-bind flow.
type turnStrategy struct {
	server   string
	username string
	password string
	realm    string
}

func NewTurn(server, username, password, realm string) Strategy {
	return &turnStrategy{server: server, username: username, password: password, realm: realm}
}

func (t *turnStrategy) Tag() StrategyTag { return Turn }

type turnAllocation struct {
	client *turn.Client
	relay  net.PacketConn
}

func (t *turnStrategy) allocate(sock net.PacketConn) (*turnAllocation, net.Addr, error) {
	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: t.server,
		TURNServerAddr: t.server,
		Conn:           sock,
		Username:       t.username,
		Password:       t.password,
		Realm:          t.realm,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Listen(); err != nil {
		return nil, nil, err
	}
	relay, err := client.Allocate()
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return &turnAllocation{client: client, relay: relay}, relay.LocalAddr(), nil
}

func (t *turnStrategy) Start(_ context.Context, m *Media, established func(error)) error {
	rtpAlloc, rtpAddr, err := t.allocate(m.RTPSocket)
	if err != nil {
		established(err)
		return err
	}
	var rtcpAlloc *turnAllocation
	var rtcpAddr net.Addr = rtpAddr
	if m.RTCPSocket != nil {
		rtcpAlloc, rtcpAddr, err = t.allocate(m.RTCPSocket)
		if err != nil {
			rtpAlloc.client.Close()
			established(err)
			return err
		}
	} else {
		rtcpAlloc = rtpAlloc
	}

	m.mu.Lock()
	m.ExternalRTP = rtpAddr
	m.ExternalRTCP = rtcpAddr
	m.mu.Unlock()
	m.turnAlloc = rtpAlloc
	m.turnAllocRTCP = rtcpAlloc

	established(nil)
	return nil
}

// Update creates a TURN permission for the peer's negotiated RTP and
// RTCP addresses once the SDP answer is known. It does not install a
// channel binding itself.
func (t *turnStrategy) Update(_ context.Context, m *Media, peerRTP, peerRTCP net.Addr) error {
	if m.turnAlloc != nil && peerRTP != nil {
		if err := m.turnAlloc.client.CreatePermission(peerRTP); err != nil {
			return err
		}
	}
	if m.turnAllocRTCP != nil && peerRTCP != nil && m.turnAllocRTCP != m.turnAlloc {
		if err := m.turnAllocRTCP.client.CreatePermission(peerRTCP); err != nil {
			return err
		}
	}
	return nil
}

func (t *turnStrategy) Stop(m *Media) {
	if m.turnAlloc != nil {
		m.turnAlloc.relay.Close()
		m.turnAlloc.client.Close()
	}
	if m.turnAllocRTCP != nil && m.turnAllocRTCP != m.turnAlloc {
		m.turnAllocRTCP.relay.Close()
		m.turnAllocRTCP.client.Close()
	}
}
