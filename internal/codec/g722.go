package codec

import g722 "github.com/gotranspile/g722"

// g722EncState/g722DecState hold per-stream codec instances: G.722 carries
// ADPCM predictor state across frames, so (unlike G.711) encode and
// decode each need one instance per direction per stream.
type g722EncState struct{ enc *g722.Encoder }
type g722DecState struct{ dec *g722.Decoder }

// RegisterG722 adds the G722 descriptor backed by
// github.com/gotranspile/g722 (a Go port of the reference ITU codec,
// the same library media-sdk's g722 package wraps).
//
// Per the RTP-clock-vs-sample-rate open question (spec §9): the RTP
// timestamp clock for G722 is 8000 Hz per RFC 3551 even though the
// decoded PCM is 16000 Hz; ClockRate and SampleRate are kept distinct
// here so callers computing RTP timestamps use ClockRate.
func RegisterG722(reg *Registry) {
	reg.Register(Descriptor{
		Name:       "G722",
		ClockRate:  8000,
		SampleRate: 16000,
		Channels:   1,
		StaticPT:   9,
		EncodeUpdate: func(p Params, _ string) (EncState, error) {
			return &g722EncState{enc: g722.NewEncoder(g722.Rate64000, 0)}, nil
		},
		DecodeUpdate: func(p Params, _ string) (DecState, error) {
			return &g722DecState{dec: g722.NewDecoder(g722.Rate64000, 0)}, nil
		},
		EncodeFrame: func(enc EncState, in []int16) ([]byte, error) {
			st := enc.(*g722EncState)
			return st.enc.Encode(in), nil
		},
		DecodeFrame: func(dec DecState, in []byte) ([]int16, error) {
			st := dec.(*g722DecState)
			return st.dec.Decode(in), nil
		},
	})
}
