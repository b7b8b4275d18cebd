package audio

import "sipagent/internal/media"

// DtmfEvent is emitted by the DTMF decode filter; call.go subscribes to
// route these into DtmfPressed/DtmfReleased event-bus publications.
type DtmfEvent struct {
	Digit   byte
	Pressed bool
}

// decodeDtmfState implements the debounce state machine from
// original_source/modules/in_band_dtmf/in_band_dtmf.c: detections of the
// same digit are coalesced while within a 50ms "still pressed" window,
// and only a sustained absence of that digit for 50ms closes the press
// with a Released event. This is the canonical DTMF filter per
// SPEC_FULL §4 (chosen over modules/dtmf/dtmf.c, which has no debounce
// timer).
type decodeDtmfState struct {
	dec        *ToneDecoder
	ptimeMS    int
	onEvent    func(DtmfEvent)
	active     bool
	digit      byte
	silenceMS  int
}

const dtmfDebounceMS = 50

// NewDTMFDecodeFilter builds the decode-path DTMF watcher. It forwards
// audio unchanged; onEvent receives Pressed/Released pairs.
func NewDTMFDecodeFilter(onEvent func(DtmfEvent)) Filter {
	return Filter{
		Name: "dtmf_decode",
		DecodeUpdate: func(p Params) (FilterState, error) {
			ptime := p.PtimeMS
			if ptime <= 0 {
				ptime = 20
			}
			return &decodeDtmfState{dec: NewToneDecoder(p.SampleRate), ptimeMS: ptime, onEvent: onEvent}, nil
		},
		DecodeFrame: func(stAny FilterState, f *media.AudioFrame) error {
			st := stAny.(*decodeDtmfState)
			pcm := toS16(f)
			digit, ok := st.dec.Detect(pcm)

			switch {
			case ok && !st.active:
				st.active = true
				st.digit = digit
				st.silenceMS = 0
				if st.onEvent != nil {
					st.onEvent(DtmfEvent{Digit: digit, Pressed: true})
				}
			case ok && st.active && digit == st.digit:
				st.silenceMS = 0
			case st.active:
				st.silenceMS += st.ptimeMS
				if st.silenceMS >= dtmfDebounceMS {
					released := st.digit
					st.active = false
					st.silenceMS = 0
					if st.onEvent != nil {
						st.onEvent(DtmfEvent{Digit: released, Pressed: false})
					}
					// A different digit detected right as the old one
					// releases starts its own press on the next frame.
				}
			}
			return nil // audio passes through unchanged
		},
	}
}

// DtmfSender is the handle a "send digits" command holds to queue tone
// pairs onto the DTMF encode filter attached to a stream (spec §4.4's
// DTMF encode filter).
type DtmfSender struct {
	gen *ToneGenerator
}

func (s *DtmfSender) SendDigits(digits string) {
	if s != nil && s.gen != nil {
		s.gen.Enqueue(digits)
	}
}

// NewDTMFEncodeFilter builds the encode-path DTMF injector and returns
// the sender handle used to queue digits. While the queue is non-empty
// the filter overwrites the passing frame with tone samples; otherwise
// it passes audio through unchanged.
func NewDTMFEncodeFilter(sampleRate int, amplitude int16, toneMS, gapMS int) (Filter, *DtmfSender) {
	sender := &DtmfSender{gen: NewToneGenerator(sampleRate, amplitude, toneMS, gapMS)}
	run := func(stAny FilterState, f *media.AudioFrame) error {
		st := stAny.(*DtmfSender)
		if !st.gen.Active() {
			return nil
		}
		pcm := make([]int16, f.SampleCount*f.Channels)
		st.gen.Fill(pcm)
		fromS16(f, pcm, media.FormatS16LE)
		return nil
	}
	return Filter{
		Name:         "dtmf_encode",
		EncodeUpdate: func(Params) (FilterState, error) { return sender, nil },
		EncodeFrame:  run,
	}, sender
}
