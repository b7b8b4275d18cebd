package stream

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"

	"sipagent/internal/media"
)

// VideoSourceInstance/VideoSinkInstance are the video analogues of
// media.SourceInstance/SinkInstance, carrying media.VideoFrame instead
// of AudioFrame. Kept separate from the audio device interfaces since
// video frames are variably sized (no fixed ptime-derived byte count).
type VideoSourceInstance interface {
	Frames() <-chan *media.VideoFrame
	Err() <-chan error
	Stop()
}

type VideoSinkInstance interface {
	Write(f *media.VideoFrame) error
	Stop()
}

// VideoConfig mirrors Config for the video leg; video has no codec
// registry in this repo's scope (spec's video stream is an analogue of
// C6 "plus self-view compositing and optional scaling", not a video
// codec stack), so frames are relayed payload-opaque: the RTP payload
// is whatever the source already produced (e.g. a vidbridge peer, or a
// passthrough capture device emitting already-encoded NAL units in
// Planes[0]).
type VideoConfig struct {
	PayloadType uint8
	ClockRate   int
	SSRC        uint32

	Conn net.PacketConn

	Source VideoSourceInstance
	Sink   VideoSinkInstance

	Logger *slog.Logger
}

// VideoStream is C7: a minimal bidirectional relay between a capture
// device (or Bridge) and RTP, plus the render side. There is no
// jitter buffer or PLC for video in this scope; spec §4.7 asks for
// "analogous to C6 plus self-view/scaling", and scaling/compositing is
// left to the render driver, not this stream.
type VideoStream struct {
	cfg    VideoConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	remoteMu sync.Mutex
	remote   net.Addr

	seq   uint16
	rtpTS uint32

	Stats Stats
}

func NewVideoStream(cfg VideoConfig) *VideoStream {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoStream{cfg: cfg, logger: logger}
}

func (s *VideoStream) UpdateRemote(addr net.Addr) {
	s.remoteMu.Lock()
	s.remote = addr
	s.remoteMu.Unlock()
}

func (s *VideoStream) remoteAddr() net.Addr {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	return s.remote
}

func (s *VideoStream) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.cfg.Source != nil {
		s.wg.Add(1)
		go s.sendLoop()
	}
	if s.cfg.Sink != nil {
		s.wg.Add(1)
		go s.recvLoop()
	}
}

func (s *VideoStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cfg.Source != nil {
		s.cfg.Source.Stop()
	}
	if s.cfg.Sink != nil {
		s.cfg.Sink.Stop()
	}
	s.wg.Wait()
}

func (s *VideoStream) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-s.cfg.Source.Frames():
			if !ok {
				return
			}
			s.send(f)
		}
	}
}

func (s *VideoStream) send(f *media.VideoFrame) {
	addr := s.remoteAddr()
	if addr == nil || len(f.Planes) == 0 {
		return
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.cfg.PayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.rtpTS,
			SSRC:           s.cfg.SSRC,
			Marker:         true,
		},
		Payload: f.Planes[0],
	}
	s.seq++
	s.rtpTS += uint32(90000 / 30) // 30fps at a 90kHz video clock, default absent explicit framerate negotiation

	raw, err := pkt.Marshal()
	if err != nil {
		s.logger.Warn("video rtp marshal failed", "error", err)
		return
	}
	if _, err := s.cfg.Conn.WriteTo(raw, addr); err != nil {
		s.logger.Warn("video rtp write failed", "error", err)
		return
	}
	s.Stats.TXPackets.Add(1)
	s.Stats.TXBytes.Add(uint64(len(raw)))
}

func (s *VideoStream) recvLoop() {
	defer s.wg.Done()
	buf := make([]byte, 65535)
	var pkt rtp.Packet
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		_ = s.cfg.Conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := s.cfg.Conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			continue
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if pkt.PayloadType != s.cfg.PayloadType {
			continue
		}
		s.Stats.RXPackets.Add(1)
		s.Stats.RXBytes.Add(uint64(n))
		frame := &media.VideoFrame{Planes: [][]byte{append([]byte(nil), pkt.Payload...)}}
		if err := s.cfg.Sink.Write(frame); err != nil {
			s.logger.Warn("video render write failed", "error", err)
		}
	}
}
