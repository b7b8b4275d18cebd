package mnat

import (
	"context"
	"net"
	"time"

	"github.com/pion/stun"
)

// keepaliveInterval is the STUN binding-refresh cadence named in spec
// §4.8/§8 (S6: "keepalive binding requests continue every 30 s").
const keepaliveInterval = 30 * time.Second

// stunStrategy implements spec §4.8's STUN strategy: a binding request
// per media socket, repeated on a keepalive ticker, reporting the
// mapped address back to the Session. Grounded on
// original_source/modules/stun/stun.c's stun_keepalive state machine.
type stunStrategy struct {
	server string // "host:port"
}

func NewStun(server string) Strategy {
	return &stunStrategy{server: server}
}

func (s *stunStrategy) Tag() StrategyTag { return Stun }

type stunKeepalive struct {
	cancel context.CancelFunc
}

func (s *stunStrategy) Start(ctx context.Context, m *Media, established func(error)) error {
	serverAddr, err := net.ResolveUDPAddr("udp", s.server)
	if err != nil {
		established(err)
		return err
	}

	kaCtx, cancel := context.WithCancel(ctx)
	m.keepalive = &stunKeepalive{cancel: cancel}

	firstDone := false
	bind := func(conn net.PacketConn) (net.Addr, error) {
		msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		if _, err := conn.WriteTo(msg.Raw, serverAddr); err != nil {
			return nil, err
		}
		buf := make([]byte, 1500)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, err
		}
		var resp stun.Message
		resp.Raw = buf[:n]
		if err := resp.Decode(); err != nil {
			return nil, err
		}
		var xor stun.XORMappedAddress
		if err := xor.GetFrom(&resp); err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: xor.IP, Port: xor.Port}, nil
	}

	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			if m.RTPSocket != nil {
				if addr, err := bind(m.RTPSocket); err == nil {
					m.mu.Lock()
					m.ExternalRTP = addr
					m.mu.Unlock()
				} else if !firstDone {
					established(err)
					return
				}
			}
			if m.RTCPSocket != nil {
				if addr, err := bind(m.RTCPSocket); err == nil {
					m.mu.Lock()
					m.ExternalRTCP = addr
					m.mu.Unlock()
				} else if !firstDone {
					established(err)
					return
				}
			}
			if !firstDone {
				firstDone = true
				established(nil)
			}
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (s *stunStrategy) Update(context.Context, *Media, net.Addr, net.Addr) error {
	return nil
}

func (s *stunStrategy) Stop(m *Media) {
	if m.keepalive != nil {
		m.keepalive.cancel()
	}
}
