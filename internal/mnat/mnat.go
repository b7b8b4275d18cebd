// Package mnat implements C8: pluggable media NAT-traversal strategies
// (none/STUN/TURN/ICE) per spec §4.8.
package mnat

import (
	"context"
	"net"
	"sync"
)

// State is the per-media-entry state machine from spec §4.8.
type State int

const (
	Init State = iota
	Gathering
	ChecksRunning
	ChecksSucceeded
	ChecksFailed
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Gathering:
		return "GATHERING"
	case ChecksRunning:
		return "CHECKS_RUNNING"
	case ChecksSucceeded:
		return "CHECKS_SUCCEEDED"
	case ChecksFailed:
		return "CHECKS_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Strategy tag, carried on the session per spec §3.
type StrategyTag string

const (
	None StrategyTag = "none"
	Stun StrategyTag = "stun"
	Turn StrategyTag = "turn"
	Ice  StrategyTag = "ice"
)

// Media is one RTP+RTCP socket pair's NAT-traversal entry, owned by a
// Session. Invariant (spec §3): when the session's established
// callback fires with success, both External fields are set here for
// every Media in the session.
type Media struct {
	mu          sync.Mutex
	State       State
	RTPSocket   net.PacketConn
	RTCPSocket  net.PacketConn
	ExternalRTP net.Addr
	ExternalRTCP net.Addr

	// keepalive/turn/ice are opaque per-strategy handles stashed by
	// Strategy.Start so the matching Stop call can release them; only
	// the strategy that set one ever reads it.
	keepalive     *stunKeepalive
	turnAlloc     *turnAllocation
	turnAllocRTCP *turnAllocation
	iceAgent      *iceAgentHandle
}

func (m *Media) setState(s State) {
	m.mu.Lock()
	m.State = s
	m.mu.Unlock()
}

// Strategy is the capability a concrete backend (none/stun/turn/ice)
// implements; Session drives all of them through this one interface,
// matching spec §9's descriptor-capability pattern (selected at
// registration time via the registry, not dispatched by a type switch
// over backend kind).
type Strategy interface {
	Tag() StrategyTag
	// Start begins gathering/mapping for one Media entry. established is
	// invoked when this entry's external addresses are known; it must be
	// safe to call from any goroutine (Session serialises it and ensures
	// the Session-level callback below fires at most once).
	Start(ctx context.Context, m *Media, established func(error)) error
	// Update delivers the peer's negotiated RTP/RTCP addresses once the
	// SDP answer is known (used by TURN channel binding, ICE nomination).
	Update(ctx context.Context, m *Media, peerRTP, peerRTCP net.Addr) error
	// Stop releases any resources (keepalive timers, allocations,
	// connectivity-check goroutines) for m.
	Stop(m *Media)
}

// Session groups the Media entries for one call's audio (and optional
// video) stream under one strategy and fires Established at most once,
// satisfying the testable property in spec §8 ("the established-callback
// is called at most once per session").
type Session struct {
	Strategy StrategyTag
	strat    Strategy

	mu          sync.Mutex
	entries     []*Media
	establishedOnce bool
	onEstablished   func(error)
}

func NewSession(strat Strategy, onEstablished func(error)) *Session {
	return &Session{Strategy: strat.Tag(), strat: strat, onEstablished: onEstablished}
}

// AddMedia registers one RTP/RTCP socket pair and starts its strategy.
func (s *Session) AddMedia(ctx context.Context, m *Media) error {
	s.mu.Lock()
	s.entries = append(s.entries, m)
	s.mu.Unlock()

	m.setState(Gathering)
	return s.strat.Start(ctx, m, func(err error) {
		if err != nil {
			m.setState(ChecksFailed)
			s.fireEstablished(err)
			return
		}
		m.setState(ChecksSucceeded)
		s.maybeFireEstablished()
	})
}

func (s *Session) Update(ctx context.Context, m *Media, peerRTP, peerRTCP net.Addr) error {
	return s.strat.Update(ctx, m, peerRTP, peerRTCP)
}

// maybeFireEstablished fires onEstablished(nil) exactly once, once every
// registered Media entry has both external addresses set.
func (s *Session) maybeFireEstablished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.establishedOnce {
		return
	}
	for _, m := range s.entries {
		m.mu.Lock()
		ready := m.State == ChecksSucceeded && m.ExternalRTP != nil && m.ExternalRTCP != nil
		m.mu.Unlock()
		if !ready {
			return
		}
	}
	s.establishedOnce = true
	if s.onEstablished != nil {
		s.onEstablished(nil)
	}
}

func (s *Session) fireEstablished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.establishedOnce {
		return
	}
	s.establishedOnce = true
	if s.onEstablished != nil {
		s.onEstablished(err)
	}
}

// Close stops every Media entry's strategy, cancelling keepalives and
// releasing TURN allocations (spec §3: "dropping a call unrefs its MNAT
// session, which cancels keepalives and releases TURN allocations").
func (s *Session) Close() {
	s.mu.Lock()
	entries := append([]*Media(nil), s.entries...)
	s.mu.Unlock()
	for _, m := range entries {
		s.strat.Stop(m)
	}
}
