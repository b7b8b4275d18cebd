package audio

import (
	"encoding/binary"

	resampler "github.com/tphakala/go-audio-resampler"

	"sipagent/internal/media"
)

// resampleState carries one resampler kernel instance per direction; it
// is only instantiated when the stream's source and target rates
// actually differ (spec §4.4: "inserted only when needed, decided at
// encode_update").
type resampleState struct {
	rs       *resampler.Resampler
	fromRate int
	toRate   int
	channels int
}

// NewResampleFilter builds the auresamp filter, backed by
// github.com/tphakala/go-audio-resampler. toRate/toChannels is the
// stream's negotiated target; EncodeUpdate/DecodeUpdate return Skip
// when a stream's frame already arrives at that rate, so the resampler
// never runs on a no-op path.
func NewResampleFilter(toRate, toChannels int) Filter {
	newState := func(p Params) (FilterState, error) {
		if p.SampleRate == toRate && p.Channels == toChannels {
			return nil, Skip
		}
		rs, err := resampler.New(p.SampleRate, toRate, toChannels)
		if err != nil {
			return nil, err
		}
		return &resampleState{rs: rs, fromRate: p.SampleRate, toRate: toRate, channels: toChannels}, nil
	}
	run := func(stAny FilterState, f *media.AudioFrame) error {
		st := stAny.(*resampleState)
		in := toS16(f)
		out, err := st.rs.ResampleS16(in)
		if err != nil {
			return err
		}
		f.SampleRate = st.toRate
		f.Channels = st.channels
		f.SampleCount = len(out) / st.channels
		f.Buffer = make([]byte, len(out)*2)
		for i, s := range out {
			binary.LittleEndian.PutUint16(f.Buffer[i*2:i*2+2], uint16(s))
		}
		f.Format = media.FormatS16LE
		return nil
	}
	return Filter{
		Name:         "auresamp",
		EncodeUpdate: newState,
		EncodeFrame:  run,
		DecodeUpdate: newState,
		DecodeFrame:  run,
	}
}
