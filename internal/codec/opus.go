//go:build opus

package codec

import (
	"sync"

	msdk "github.com/livekit/media-sdk"
	msdkopus "github.com/livekit/media-sdk/opus"
	"github.com/livekit/protocol/logger"

	"sipagent/internal/errs"
)

// RegisterOpus wires github.com/livekit/media-sdk's cgo-backed Opus
// codec into our frame-based Descriptor contract. This is the other
// half of teacher's bridge/lk_codecs_opus.go: where teacher registers
// Opus straight into media-sdk's own RTP-writer-shaped registry, this
// adapts the same msdk.PCM16Writer/WriteCloser[Sample] streaming API
// into spec.md §4.3's encode_frame(samples)->bytes / decode_frame(bytes)
// ->samples shape by capturing each WriteSample call's output into a
// one-shot buffer instead of forwarding it to a chained writer.
//
// Build with `-tags opus` (requires libopus + pkg-config), matching
// teacher's own build tag.
func RegisterOpus(reg *Registry, channels int) {
	name := "opus"
	if channels == 1 {
		name = "opus"
	}
	reg.Register(Descriptor{
		Name:       name,
		ClockRate:  48000,
		SampleRate: 48000,
		Channels:   channels,
		StaticPT:   -1, // dynamic, per RFC 7587
		EncodeUpdate: func(p Params, fmtp string) (EncState, error) {
			sink := newOpusCapture()
			enc, err := msdkopus.Encode(sink, channels, logger.GetLogger())
			if err != nil {
				return nil, errs.Wrap(errs.NotSupported, "opus encoder unavailable", err)
			}
			return &opusEncState{enc: enc, sink: sink}, nil
		},
		EncodeFrame: func(st EncState, samples []int16) ([]byte, error) {
			s := st.(*opusEncState)
			s.sink.mu.Lock()
			s.sink.last = nil
			s.sink.mu.Unlock()
			if err := s.enc.WriteSample(msdk.PCM16Sample(samples)); err != nil {
				return nil, err
			}
			s.sink.mu.Lock()
			defer s.sink.mu.Unlock()
			return s.sink.last, nil
		},
		DecodeUpdate: func(p Params, fmtp string) (DecState, error) {
			sink := newPCM16Capture()
			dec, err := msdkopus.Decode(sink, channels, logger.GetLogger())
			if err != nil {
				return nil, errs.Wrap(errs.NotSupported, "opus decoder unavailable", err)
			}
			return &opusDecState{dec: dec, sink: sink}, nil
		},
		DecodeFrame: func(st DecState, payload []byte) ([]int16, error) {
			s := st.(*opusDecState)
			s.sink.mu.Lock()
			s.sink.last = nil
			s.sink.mu.Unlock()
			if err := s.dec.WriteSample(msdkopus.Sample(payload)); err != nil {
				return nil, err
			}
			s.sink.mu.Lock()
			defer s.sink.mu.Unlock()
			return s.sink.last, nil
		},
	})
}

type opusEncState struct {
	enc  msdk.PCM16Writer
	sink *opusCapture
}

type opusDecState struct {
	dec  msdk.WriteCloser[msdkopus.Sample]
	sink *pcm16Capture
}

// opusCapture implements msdk.WriteCloser[msdkopus.Sample]: the
// encoder's output sink, capturing the single encoded frame produced
// by the matching WriteSample call above.
type opusCapture struct {
	mu   sync.Mutex
	last []byte
}

func newOpusCapture() *opusCapture { return &opusCapture{} }

func (c *opusCapture) String() string  { return "opus-capture" }
func (c *opusCapture) SampleRate() int { return 48000 }
func (c *opusCapture) Close() error    { return nil }
func (c *opusCapture) WriteSample(s msdkopus.Sample) error {
	c.mu.Lock()
	c.last = append([]byte(nil), []byte(s)...)
	c.mu.Unlock()
	return nil
}

// pcm16Capture implements msdk.PCM16Writer: the decoder's output sink.
type pcm16Capture struct {
	mu   sync.Mutex
	last []int16
}

func newPCM16Capture() *pcm16Capture { return &pcm16Capture{} }

func (c *pcm16Capture) String() string  { return "pcm16-capture" }
func (c *pcm16Capture) SampleRate() int { return 48000 }
func (c *pcm16Capture) Close() error    { return nil }
func (c *pcm16Capture) WriteSample(s msdk.PCM16Sample) error {
	c.mu.Lock()
	c.last = append([]int16(nil), []int16(s)...)
	c.mu.Unlock()
	return nil
}
