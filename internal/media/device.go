package media

import "sipagent/internal/registry"

// DeviceKind classifies a C1 device descriptor.
type DeviceKind int

const (
	AudioSource DeviceKind = iota
	AudioSink
	VideoSource
	VideoSink
)

// SourceParams/SinkParams are the allocation parameters spec §4.2 names:
// sample rate, channel count, sample format, packet time, device name.
type SourceParams struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
	PtimeMS    int
	Device     string
}

type SinkParams = SourceParams

// SourceInstance is the Go-idiomatic rendering of spec §4.2's audio
// source contract: instead of a driver thread invoking a read callback
// rh(frame, ctx) plus an error callback eh(code, reason, ctx), the
// driver-owned goroutine sends frames and a terminal error down two
// channels. Frames arrive at real-time cadence with monotonically
// non-decreasing CaptureTS, exactly as spec §4.2 requires; the
// capability (send-only channel) keeps the driver thread from doing
// anything beyond "push a frame", matching spec §9's rule that driver
// callbacks may only push into buffers and touch atomics.
type SourceInstance interface {
	Frames() <-chan *AudioFrame
	// Err receives exactly one value (the fatal I/O error) when the
	// driver stops, then is closed.
	Err() <-chan error
	Stop()
}

// SinkInstance is the render-side analogue: the stream's render loop
// calls Write at real-time cadence (it, not the driver, owns pacing
// here since the driver is a passive consumer - e.g. an OS audio
// device - fed at whatever rate the caller provides frames).
type SinkInstance interface {
	Write(f *AudioFrame) error
	Stop()
}

// Descriptor is the C1 capability set: kind, name, and an
// allocate-instance capability appropriate to that kind. Only the
// allocator matching Kind needs to be set.
type Descriptor struct {
	Kind DeviceKind
	Name string

	AllocateSource func(p SourceParams) (SourceInstance, error)
	AllocateSink   func(p SinkParams) (SinkInstance, error)
}

// Registry is the C1 device registry: named lookup of capture/render
// drivers for audio and video.
type Registry struct {
	reg *registry.Registry[Descriptor]
}

func NewRegistry() *Registry {
	return &Registry{reg: registry.New[Descriptor]()}
}

func (r *Registry) Register(d Descriptor)        { r.reg.Register(d.Name, d) }
func (r *Registry) Unregister(name string)       { r.reg.Unregister(name) }
func (r *Registry) Get(name string) (Descriptor, bool) { return r.reg.Get(name) }
func (r *Registry) Names() []string              { return r.reg.Names() }
