package audio

import (
	"encoding/binary"

	"sipagent/internal/media"
)

// plcState remembers the last known-good frame so a lost frame can be
// concealed by a decaying repeat of it, and the sample count to
// synthesise when the decoder hands back an empty frame. Grounded on
// original_source/modules/plc/plc.c's "sampc == 0 means packet loss"
// signal and its energy-decaying repeat strategy; there is no
// standalone PLC library in the pack (spandsp is a C library, not a Go
// module any example imports), so the decay/repeat math below is
// implemented directly rather than left unwired.
type plcState struct {
	lastGood    []int16
	lastSampleN int
	lossRun     int
}

// NewPLCFilter builds the decode-only plc filter. It only attaches to
// the decode side (EncodeUpdate is nil, so Chain.Attach never creates
// an encode-side instance).
func NewPLCFilter() Filter {
	return Filter{
		Name: "plc",
		DecodeUpdate: func(Params) (FilterState, error) {
			return &plcState{}, nil
		},
		DecodeFrame: func(stAny FilterState, f *media.AudioFrame) error {
			st := stAny.(*plcState)
			if f.SampleCount > 0 {
				st.lastGood = toS16(f)
				st.lastSampleN = f.SampleCount
				st.lossRun = 0
				return nil
			}

			st.lossRun++
			n := st.lastSampleN
			if n == 0 {
				n = f.ExpectedBufferSize() / (f.Channels * f.Format.BytesPerSample())
			}
			concealed := synthesizeConcealment(st.lastGood, n, st.lossRun)

			f.SampleCount = n
			f.Format = media.FormatS16LE
			f.Buffer = make([]byte, n*f.Channels*2)
			for i, s := range concealed {
				binary.LittleEndian.PutUint16(f.Buffer[i*2:i*2+2], uint16(s))
			}
			return nil
		},
	}
}

// synthesizeConcealment repeats the tail of last, attenuated by
// ~-3dB per consecutive lost frame so prolonged loss fades to silence
// instead of looping audibly forever.
func synthesizeConcealment(last []int16, n, lossRun int) []int16 {
	out := make([]int16, n)
	if len(last) == 0 {
		return out
	}
	atten := 1.0
	for i := 1; i < lossRun; i++ {
		atten *= 0.75
	}
	for i := 0; i < n; i++ {
		src := last[i%len(last)]
		out[i] = int16(float64(src) * atten)
	}
	return out
}
