// Package stream implements C6/C7: the per-call audio and video
// streams that glue a device driver, a filter chain, a codec, a jitter
// buffer and an RTP transport together. Grounded on the teacher's
// bridge/media_bridge.go MediaBridge: the same three-goroutine shape
// (read-from-network, write-to-render, read-from-capture-write-to-network)
// and the same drift-controlled ticker pacing, re-pointed from "bridge
// SIP to Telegram" onto "bridge a local capture/render device to RTP".
package stream

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"sipagent/internal/audio"
	"sipagent/internal/codec"
	"sipagent/internal/media"
)

// Stats are the per-stream counters (packets and bytes sent/received,
// concealed frames, discarded packets) that the rtcpsummary module
// reports. Jitter-buffer over/underflow counts live on the
// JitterBuffer itself, not here.
type Stats struct {
	TXPackets   atomic.Uint64
	RXPackets   atomic.Uint64
	TXBytes     atomic.Uint64
	RXBytes     atomic.Uint64
	Concealed   atomic.Uint64
	Discarded   atomic.Uint64 // wrong-payload-type packets, per spec §4.6 edge case
}

// Config bundles everything AudioStream needs at construction: the
// negotiated codec binding, local/remote ptime, the RTP socket and
// remote address, and the capture/render device instances.
type Config struct {
	Codec      codec.Descriptor
	PayloadType uint8
	Params     codec.Params
	SSRC       uint32

	Conn net.PacketConn

	Source media.SourceInstance // nil for recv-only streams
	Sink   media.SinkInstance   // nil for send-only streams

	EncodeChain *audio.Chain
	DecodeChain *audio.Chain

	Logger *slog.Logger
}

// AudioStream is C6: a bidirectional RTP audio stream for one call leg.
type AudioStream struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	encSt codec.EncState
	decSt codec.DecState

	remoteMu sync.Mutex
	remote   net.Addr

	seq   uint16
	rtpTS uint32

	jitter *audio.JitterBuffer

	Stats Stats
}

const bytesPerSample = 2 // S16LE throughout the stream's internal pipeline

// New constructs a stream and primes its codec state; it does not
// start any goroutines until Start is called.
func New(cfg Config) (*AudioStream, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &AudioStream{cfg: cfg, logger: logger}

	if cfg.Codec.EncodeUpdate != nil {
		st, err := cfg.Codec.EncodeUpdate(cfg.Params, "")
		if err != nil {
			return nil, err
		}
		s.encSt = st
	}
	if cfg.Codec.DecodeUpdate != nil {
		st, err := cfg.Codec.DecodeUpdate(cfg.Params, "")
		if err != nil {
			return nil, err
		}
		s.decSt = st
	}

	samplesPerPtime := cfg.Params.SampleRate * cfg.Params.PtimeMS / 1000
	jitterBytes := samplesPerPtime * cfg.Params.Channels * bytesPerSample
	// 5 frames min, 20 frames max depth, matching spec §4.4's default
	// jitter-buffer sizing guidance (bounded, configurable depth).
	s.jitter = audio.NewJitterBuffer(jitterBytes*5, jitterBytes*20, 1)

	return s, nil
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// UpdateRemote sets/changes the peer RTP address, used on re-INVITE or
// once an MNAT session resolves the real peer endpoint.
func (s *AudioStream) UpdateRemote(addr net.Addr) {
	s.remoteMu.Lock()
	s.remote = addr
	s.remoteMu.Unlock()
}

func (s *AudioStream) remoteAddr() net.Addr {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	return s.remote
}

// Start launches the send, receive and render goroutines.
func (s *AudioStream) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.recvLoop()
	if s.cfg.Source != nil {
		s.wg.Add(1)
		go s.sendLoop()
	}
	if s.cfg.Sink != nil {
		s.wg.Add(1)
		go s.renderLoop()
	}
}

// Stop cancels the stream's goroutines, waits for them to exit and
// flushes the jitter buffer.
func (s *AudioStream) Stop() {
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
	s.jitter.Flush()
}

// sendLoop is the capture->filter-chain->encode->packetize->socket path.
// Grounded on MediaBridge.writeSIP's encode-and-write loop, minus the
// Telegram-specific assembler/backlog-drain (the capture driver here
// already produces frames at the stream's own ptime).
func (s *AudioStream) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-s.cfg.Source.Frames():
			if !ok {
				return
			}
			s.encodeAndSend(f)
		case err := <-s.cfg.Source.Err():
			if err != nil {
				s.logger.Warn("capture source stopped", "error", err)
			}
			return
		}
	}
}

func (s *AudioStream) encodeAndSend(f *media.AudioFrame) {
	if s.cfg.EncodeChain != nil {
		if err := s.cfg.EncodeChain.RunEncode(f); err != nil {
			s.logger.Warn("encode filter chain error", "error", err)
			return
		}
	}

	samples := bytesToS16(f.Buffer)
	payload, err := s.cfg.Codec.EncodeFrame(s.encSt, samples)
	if err != nil {
		s.logger.Warn("codec encode failed", "codec", s.cfg.Codec.Name, "error", err)
		return
	}

	addr := s.remoteAddr()
	if addr == nil {
		return
	}

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.cfg.PayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.rtpTS,
			SSRC:           s.cfg.SSRC,
		},
		Payload: payload,
	}
	s.seq++
	tsInc := len(samples) / max1(f.Channels)
	if s.cfg.Codec.ClockRate > 0 && s.cfg.Codec.SampleRate > 0 {
		tsInc = tsInc * s.cfg.Codec.ClockRate / s.cfg.Codec.SampleRate
	}
	s.rtpTS += uint32(tsInc)

	raw, err := pkt.Marshal()
	if err != nil {
		s.logger.Warn("rtp marshal failed", "error", err)
		return
	}
	if _, err := s.cfg.Conn.WriteTo(raw, addr); err != nil {
		s.logger.Warn("rtp write failed", "error", err)
		return
	}
	s.Stats.TXPackets.Add(1)
	s.Stats.TXBytes.Add(uint64(len(raw)))
}

// recvLoop is the socket->depacketize->jitter-buffer path. Payload
// cloning mirrors MediaBridge.readSIP's explicit append([]byte(nil), ...)
// comment: the jitter buffer retains bytes past this read, so the
// underlying net.PacketConn's reusable buffer must not be aliased.
func (s *AudioStream) recvLoop() {
	defer s.wg.Done()
	buf := make([]byte, 1500)
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
			continue // read timeout; loop and re-check ctx
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if pkt.PayloadType != s.cfg.PayloadType {
			s.Stats.Discarded.Add(1)
			continue
		}
		payload := append([]byte(nil), pkt.Payload...)
		s.jitter.AppendTimestamped(payload, int64(pkt.Timestamp), true)
		s.Stats.RXPackets.Add(1)
		s.Stats.RXBytes.Add(uint64(n))
	}
}

// renderLoop is the jitter-buffer->decode->filter-chain->render path,
// ticked at ptime. A read that underflows the jitter buffer is treated
// as packet loss per spec §3 ("sample_count == 0 signals loss to PLC"):
// the decode filter chain (which includes the PLC filter when
// attached) sees an empty frame and is responsible for concealment.
func (s *AudioStream) renderLoop() {
	defer s.wg.Done()
	ptime := time.Duration(s.cfg.Params.PtimeMS) * time.Millisecond
	ticker := time.NewTicker(ptime)
	defer ticker.Stop()

	samplesPerPtime := s.cfg.Params.SampleRate * s.cfg.Params.PtimeMS / 1000
	payloadBytes := samplesPerPtime * s.cfg.Params.Channels * bytesPerSample
	lastUnderflow := s.jitter.Underflow()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			raw := make([]byte, payloadBytes)
			s.jitter.ReadExact(raw)

			lost := s.jitter.Underflow() != lastUnderflow
			lastUnderflow = s.jitter.Underflow()

			var samples []int16
			sampleCount := samplesPerPtime
			if lost {
				sampleCount = 0
				s.Stats.Concealed.Add(1)
			} else {
				var err error
				samples, err = s.cfg.Codec.DecodeFrame(s.decSt, raw)
				if err != nil {
					s.logger.Warn("codec decode failed", "codec", s.cfg.Codec.Name, "error", err)
					sampleCount = 0
				}
			}

			frame := &media.AudioFrame{
				Format:      media.FormatS16LE,
				SampleRate:  s.cfg.Params.SampleRate,
				Channels:    s.cfg.Params.Channels,
				SampleCount: sampleCount,
				Buffer:      s16ToBytes(samples),
			}
			if s.cfg.DecodeChain != nil {
				if err := s.cfg.DecodeChain.RunDecode(frame); err != nil {
					s.logger.Warn("decode filter chain error", "error", err)
					continue
				}
			}
			if frame.SampleCount == 0 {
				continue
			}
			if err := s.cfg.Sink.Write(frame); err != nil {
				s.logger.Warn("render sink write failed", "error", err)
			}
		}
	}
}

func bytesToS16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

func s16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
