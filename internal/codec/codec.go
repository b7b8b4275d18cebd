// Package codec implements the C2 codec registry: named lookup of audio
// codecs with payload-type negotiation, per spec §4.3.
package codec

import (
	"sipagent/internal/errs"
	"sipagent/internal/registry"
)

// Params describes the negotiated stream parameters a codec instance is
// created against (sample rate, channel count, ptime).
type Params struct {
	SampleRate int
	Channels   int
	PtimeMS    int
}

// EncState and DecState are opaque per-stream codec instance handles
// returned by EncodeUpdate/DecodeUpdate; each codec implementation
// defines its own concrete type.
type EncState any
type DecState any

// Descriptor is the capability set a registered codec implements,
// expressed as a value with optional methods rather than a C-style
// function-pointer struct (spec §9's descriptor-capability pattern).
// Only EncodeFrame/DecodeFrame are mandatory; the rest are optional
// capabilities probed via the Has* accessors.
type Descriptor struct {
	Name       string
	ClockRate  int // RTP clock rate, per RFC 3551 (may differ from SampleRate, e.g. G.722).
	SampleRate int // effective decoded PCM sample rate.
	Channels   int
	// StaticPT is the RFC 3551 static payload type, or -1 if this codec
	// only ever binds dynamically.
	StaticPT int

	EncodeUpdate func(p Params, remoteFmtp string) (EncState, error)
	EncodeFrame  func(enc EncState, in []int16) ([]byte, error)
	DecodeUpdate func(p Params, remoteFmtp string) (DecState, error)
	DecodeFrame  func(dec DecState, in []byte) ([]int16, error)

	// PLC synthesises `count` concealment samples for one lost frame.
	// Optional; nil if the codec has no native PLC.
	PLC func(dec DecState, count int) []int16

	// FmtpEncode emits the SDP a=fmtp: payload for this codec, or ""
	// if it has none. Optional.
	FmtpEncode func(offer bool) string
	// FmtpCompare governs negotiation acceptance between a local and
	// remote fmtp string. Optional; nil means "always compatible".
	FmtpCompare func(local, remote string) bool
}

func (d Descriptor) HasPLC() bool         { return d.PLC != nil }
func (d Descriptor) HasFmtpEncode() bool  { return d.FmtpEncode != nil }
func (d Descriptor) HasFmtpCompare() bool { return d.FmtpCompare != nil }

// Registry is the C2 lookup table: a registry.Registry[Descriptor]
// plus the payload-type negotiation rules from spec §4.3.
type Registry struct {
	reg *registry.Registry[Descriptor]
}

func NewRegistry() *Registry {
	return &Registry{reg: registry.New[Descriptor]()}
}

func (r *Registry) Register(d Descriptor) { r.reg.Register(d.Name, d) }
func (r *Registry) Unregister(name string) { r.reg.Unregister(name) }
func (r *Registry) Get(name string) (Descriptor, bool) { return r.reg.Get(name) }
func (r *Registry) Names() []string { return r.reg.Names() }

// staticPT is the RFC 3551 static payload-type table named in spec
// §4.3/§6.
var staticPT = map[string]int{
	"PCMU": 0,
	"GSM":  3,
	"PCMA": 8,
	"G722": 9,
	"L16/44100/2":  10, // L16-stereo
	"L16/44100/1":  11, // L16-mono
}

// Binding is one negotiated codec <-> payload-type pairing.
type Binding struct {
	Descriptor Descriptor
	PT         uint8
}

// Negotiate assigns payload types to the named codecs in registration
// (preference) order: static codecs bind by their fixed number; the
// rest receive the next free dynamic number starting at 96 and skipping
// any in-use number, per spec §4.3 and original_source's
// modules/account/account.c payload_type() logic. Dynamic numbers run
// up to 127; once they are used up Negotiate returns NotSupported.
func (r *Registry) Negotiate(names []string) ([]Binding, error) {
	used := make(map[int]bool)
	var bindings []Binding
	var pending []Descriptor

	for _, name := range names {
		d, ok := r.reg.Get(name)
		if !ok {
			return nil, errs.Wrap(errs.NotFound, "codec "+name, nil)
		}
		if d.StaticPT >= 0 {
			used[d.StaticPT] = true
			bindings = append(bindings, Binding{Descriptor: d, PT: uint8(d.StaticPT)})
		} else {
			pending = append(pending, d)
		}
	}

	next := 96
	for _, d := range pending {
		for used[next] && next <= 127 {
			next++
		}
		if next > 127 {
			return nil, errs.New(errs.NotSupported, "exhausted dynamic payload types")
		}
		used[next] = true
		bindings = append(bindings, Binding{Descriptor: d, PT: uint8(next)})
		next++
	}
	return bindings, nil
}

// StaticPTFor reports the RFC 3551 static payload type bound to an SDP
// codec name, or -1 if the codec only binds dynamically.
func StaticPTFor(sdpName string) int {
	if pt, ok := staticPT[sdpName]; ok {
		return pt
	}
	return -1
}
