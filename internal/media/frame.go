// Package media holds the frame types shared by the codec, audio, and
// stream packages, kept free of dependencies on any of them to avoid
// import cycles (device drivers, codecs, and filters all need the same
// frame shape without needing each other).
package media

// SampleFormat enumerates the PCM/companded representations a frame's
// buffer may hold.
type SampleFormat int

const (
	FormatS16LE SampleFormat = iota
	FormatFloat32
	FormatALaw
	FormatULaw
)

func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatFloat32:
		return 4
	case FormatALaw, FormatULaw:
		return 1
	default:
		return 2
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return "s16le"
	case FormatFloat32:
		return "float32"
	case FormatALaw:
		return "alaw"
	case FormatULaw:
		return "ulaw"
	default:
		return "unknown"
	}
}

// AudioFrame is the unit the capture driver produces and the render
// driver consumes, and what flows through the encode/decode filter
// chains. Invariant (spec §3): len(Buffer) == SampleCount * Channels *
// Format.BytesPerSample().
type AudioFrame struct {
	Format      SampleFormat
	SampleRate  int
	Channels    int
	SampleCount int
	Buffer      []byte
	// CaptureTS is microseconds since an arbitrary epoch, monotonically
	// non-decreasing within one capture driver's lifetime.
	CaptureTS int64
	// RTPTimestamp is set once the frame has been assigned to an RTP
	// packet; zero until then.
	RTPTimestamp uint32
}

func (f *AudioFrame) ExpectedBufferSize() int {
	return f.SampleCount * f.Channels * f.Format.BytesPerSample()
}

// Valid checks the §3 invariant.
func (f *AudioFrame) Valid() bool {
	return len(f.Buffer) == f.ExpectedBufferSize()
}

// PixelFormat enumerates supported video pixel layouts. Video DSP itself
// is out of scope (spec §1 Non-goals); this exists only so C7's stream
// plumbing has a frame shape to move around.
type PixelFormat int

const (
	PixelYUV420P PixelFormat = iota
	PixelNV12
)

type VideoFrame struct {
	Format   PixelFormat
	Width    int
	Height   int
	Planes   [][]byte
	Strides  []int
	TS       int64
}
