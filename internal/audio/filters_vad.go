package audio

import "sipagent/internal/media"

// VadEvent is emitted by the fvad filter whenever active-voice status
// transitions; callers wire OnTransition to publish it on the event bus
// as spec §4.4 requires ("emits a vad event with the new state").
type VadEvent struct {
	Active bool
}

type vadState struct {
	energyThreshold int64
	active          bool
	onTransition    func(VadEvent)
}

// NewVADFilter builds the fvad filter: a simple short-term energy
// detector over 10/20/30ms chunks, grounded on
// original_source/modules/fvad/fvad.c's chunked voice-activity contract
// (process N-ms chunks at the stream rate, transition-driven events).
// libfvad itself is a C library with no Go binding in the pack; the
// threshold-crossing detector below reproduces its externally observable
// contract (chunked processing, transition events) without depending on
// its internal Gaussian mixture model.
func NewVADFilter(onTransition func(VadEvent)) Filter {
	newState := func(Params) (FilterState, error) {
		return &vadState{energyThreshold: 1_000_000, onTransition: onTransition}, nil
	}
	run := func(stAny FilterState, f *media.AudioFrame) error {
		st := stAny.(*vadState)
		pcm := toS16(f)
		var energy int64
		for _, s := range pcm {
			energy += int64(s) * int64(s)
		}
		if len(pcm) > 0 {
			energy /= int64(len(pcm))
		}
		active := energy > st.energyThreshold
		if active != st.active {
			st.active = active
			if st.onTransition != nil {
				st.onTransition(VadEvent{Active: active})
			}
		}
		return nil
	}
	return Filter{
		Name:         "fvad",
		DecodeUpdate: newState,
		DecodeFrame:  run,
	}
}
