package codec

import g711 "github.com/zaf/g711"

// g711State is shared by encode and decode: G.711 is stateless per
// frame, so there is nothing to carry beyond the configured params.
type g711State struct {
	params Params
}

// RegisterG711 adds the PCMU (µ-law) and PCMA (A-law) descriptors,
// backed by github.com/zaf/g711's companding tables — the same DSP
// library the teacher depends on (it ships under livekit/media-sdk/g711
// there; here it is used directly so our Descriptor contract owns the
// encode/decode framing instead of media-sdk's RTP-handler framing).
func RegisterG711(reg *Registry) {
	reg.Register(Descriptor{
		Name:       "PCMU",
		ClockRate:  8000,
		SampleRate: 8000,
		Channels:   1,
		StaticPT:   0,
		EncodeUpdate: func(p Params, _ string) (EncState, error) { return &g711State{params: p}, nil },
		DecodeUpdate: func(p Params, _ string) (DecState, error) { return &g711State{params: p}, nil },
		EncodeFrame: func(_ EncState, in []int16) ([]byte, error) {
			return g711.EncodeUlaw(in), nil
		},
		DecodeFrame: func(_ DecState, in []byte) ([]int16, error) {
			return g711.DecodeUlaw(in), nil
		},
	})

	reg.Register(Descriptor{
		Name:       "PCMA",
		ClockRate:  8000,
		SampleRate: 8000,
		Channels:   1,
		StaticPT:   8,
		EncodeUpdate: func(p Params, _ string) (EncState, error) { return &g711State{params: p}, nil },
		DecodeUpdate: func(p Params, _ string) (DecState, error) { return &g711State{params: p}, nil },
		EncodeFrame: func(_ EncState, in []int16) ([]byte, error) {
			return g711.EncodeAlaw(in), nil
		},
		DecodeFrame: func(_ DecState, in []byte) ([]int16, error) {
			return g711.DecodeAlaw(in), nil
		},
	})
}
