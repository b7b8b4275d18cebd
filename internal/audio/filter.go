package audio

import "sipagent/internal/media"

// Skip is returned by EncodeUpdate/DecodeUpdate to say this filter does
// not apply to the current stream and should be removed from it (spec
// §4.4: "Skip removes the filter from this stream").
var Skip error = skipSentinel{}

type skipSentinel struct{}

func (skipSentinel) Error() string { return "filter: skip" }

// FilterState is the opaque per-stream instance a filter's Update
// returns; each filter implementation defines its own concrete type.
type FilterState any

// Filter is the C3 capability set: a descriptor value with up to four
// optional capability methods, selected at registration time rather
// than dispatched through a function-pointer struct (spec §9).
type Filter struct {
	Name string

	EncodeUpdate func(p Params) (FilterState, error) // may return Skip
	EncodeFrame  func(st FilterState, f *media.AudioFrame) error

	DecodeUpdate func(p Params) (FilterState, error) // may return Skip
	DecodeFrame  func(st FilterState, f *media.AudioFrame) error
}

// Params mirrors codec.Params; duplicated here (rather than imported)
// to keep package audio free of a dependency on package codec, since
// codec does not need to know about filters.
type Params struct {
	SampleRate int
	Channels   int
	PtimeMS    int
}

// Chain is the ordered list of filter instances attached to one
// direction of one stream. Encode runs in declaration order; Decode
// runs in the reverse of declaration order when the filter set is
// "symmetric" per spec §4.4, which in practice means: build two chains
// (one per direction) with Attach, in the order each direction actually
// wants its filters to run.
type Chain struct {
	entries []chainEntry
}

type chainEntry struct {
	filter Filter
	encSt  FilterState
	decSt  FilterState
	active bool
}

// Attach instantiates filter against p for both directions this Chain
// will be asked to run; a filter that returns Skip for a direction is
// simply never invoked for that direction (its slot stays inactive)
// without being removed from the other direction's chain.
func (c *Chain) Attach(f Filter, p Params) error {
	e := chainEntry{filter: f}
	if f.EncodeUpdate != nil {
		st, err := f.EncodeUpdate(p)
		if err == Skip {
			e.encSt = nil
		} else if err != nil {
			return err
		} else {
			e.encSt = st
			e.active = true
		}
	}
	if f.DecodeUpdate != nil {
		st, err := f.DecodeUpdate(p)
		if err == Skip {
			e.decSt = nil
		} else if err != nil {
			return err
		} else {
			e.decSt = st
			e.active = true
		}
	}
	if e.active {
		c.entries = append(c.entries, e)
	}
	return nil
}

// RunEncode runs every attached filter's EncodeFrame, in declaration
// (Attach) order.
func (c *Chain) RunEncode(f *media.AudioFrame) error {
	for _, e := range c.entries {
		if e.encSt == nil || e.filter.EncodeFrame == nil {
			continue
		}
		if err := e.filter.EncodeFrame(e.encSt, f); err != nil {
			return err
		}
	}
	return nil
}

// RunDecode runs every attached filter's DecodeFrame in reverse
// declaration order, matching the receive path's mirror-image ordering
// in spec §4.4/§4.6 (decode-filter chain runs PLC/resample/gain/fmt-conv
// before the frame reaches the render driver, which is the reverse of
// how encode-side filters were declared for the matching send path).
func (c *Chain) RunDecode(f *media.AudioFrame) error {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.decSt == nil || e.filter.DecodeFrame == nil {
			continue
		}
		if err := e.filter.DecodeFrame(e.decSt, f); err != nil {
			return err
		}
	}
	return nil
}
