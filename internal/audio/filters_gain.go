package audio

import (
	"encoding/binary"
	"sync/atomic"

	"sipagent/internal/media"
)

// gainState holds the runtime-adjustable gain factor (×1000 fixed point,
// mutated atomically so a CLI command on the main thread can update it
// without locking the audio path), grounded on
// original_source/modules/augain/augain.c.
type gainState struct {
	milli atomic.Int64 // factor * 1000
}

func (g *gainState) SetFactor(f float64) { g.milli.Store(int64(f * 1000)) }
func (g *gainState) Factor() float64     { return float64(g.milli.Load()) / 1000 }

// NewGainFilter builds the augain filter: scales 16-bit PCM samples by
// a runtime-adjustable factor, clamping so the largest magnitude sample
// cannot exceed 32767 (spec §4.4).
func NewGainFilter(initial float64) (Filter, *gainState) {
	st := &gainState{}
	st.SetFactor(initial)

	apply := func(stAny FilterState, f *media.AudioFrame) error {
		g := stAny.(*gainState)
		factor := g.Factor()
		if factor == 1.0 || f.Format != media.FormatS16LE {
			return nil
		}
		for off := 0; off+1 < len(f.Buffer); off += 2 {
			s := int16(binary.LittleEndian.Uint16(f.Buffer[off : off+2]))
			scaled := float64(s) * factor
			if scaled > 32767 {
				scaled = 32767
			} else if scaled < -32768 {
				scaled = -32768
			}
			binary.LittleEndian.PutUint16(f.Buffer[off:off+2], uint16(int16(scaled)))
		}
		return nil
	}

	return Filter{
		Name:         "augain",
		EncodeUpdate: func(Params) (FilterState, error) { return st, nil },
		EncodeFrame:  apply,
		DecodeUpdate: func(Params) (FilterState, error) { return st, nil },
		DecodeFrame:  apply,
	}, st
}
