package codec

import "sipagent/internal/errs"

// RegisterTelephoneEvent adds the RFC 4733 "telephone-event" payload
// format to the registry so it participates in payload-type negotiation
// and appears in SDP as any other codec would (spec §4.3's static/
// dynamic PT table applies to it identically). It carries no PCM
// samples of its own, and nothing in this repository reads or writes
// telephone-event payloads: internal/audio's DTMF filters generate and
// detect in-band tones in the PCM stream. EncodeFrame/DecodeFrame are
// wired to return NotSupported so a misrouted audio frame fails loudly
// instead of silently producing garbage.
//
// Mirrors the teacher's bridge/lk_codecs.go pattern of registering
// github.com/livekit/media-sdk/dtmf for side-effect self-registration;
// here registration is explicit against our own Registry instead of
// media-sdk's global one.
func RegisterTelephoneEvent(reg *Registry) {
	notAudio := func(EncState, []int16) ([]byte, error) {
		return nil, errs.New(errs.NotSupported, "telephone-event carries no PCM")
	}
	notAudioDec := func(DecState, []byte) ([]int16, error) {
		return nil, errs.New(errs.NotSupported, "telephone-event carries no PCM")
	}
	reg.Register(Descriptor{
		Name:       "telephone-event",
		ClockRate:  8000,
		SampleRate: 8000,
		Channels:   1,
		StaticPT:   -1,
		EncodeUpdate: func(p Params, _ string) (EncState, error) { return nil, nil },
		DecodeUpdate: func(p Params, _ string) (DecState, error) { return nil, nil },
		EncodeFrame:  notAudio,
		DecodeFrame:  notAudioDec,
	})
}
