package audio

import (
	"encoding/binary"
	"math"

	"sipagent/internal/media"
)

// convState remembers the target format this stream wants; conversions
// always round-trip through 16-bit linear PCM as the intermediate
// representation, per spec §4.4's auconv contract.
type convState struct {
	target media.SampleFormat
}

// NewFormatConverter builds the auconv filter: converts a frame to
// target via a 16-bit PCM intermediate when its format differs,
// otherwise passes it through unchanged. Grounded on
// original_source/modules/auconv/auconv.c.
func NewFormatConverter(target media.SampleFormat) Filter {
	convert := func(stAny FilterState, f *media.AudioFrame) error {
		st := stAny.(*convState)
		if f.Format == st.target {
			return nil
		}
		pcm := toS16(f)
		fromS16(f, pcm, st.target)
		return nil
	}
	newState := func(Params) (FilterState, error) { return &convState{target: target}, nil }
	return Filter{
		Name:         "auconv",
		EncodeUpdate: newState,
		EncodeFrame:  convert,
		DecodeUpdate: newState,
		DecodeFrame:  convert,
	}
}

// toS16 returns f's samples as signed 16-bit PCM regardless of f's
// current format.
func toS16(f *media.AudioFrame) []int16 {
	out := make([]int16, f.SampleCount*f.Channels)
	switch f.Format {
	case media.FormatS16LE:
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(f.Buffer[i*2 : i*2+2]))
		}
	case media.FormatFloat32:
		for i := range out {
			bits := binary.LittleEndian.Uint32(f.Buffer[i*4 : i*4+4])
			v := math.Float32frombits(bits)
			out[i] = floatToS16(v)
		}
	case media.FormatALaw:
		for i := range out {
			out[i] = alawToS16(f.Buffer[i])
		}
	case media.FormatULaw:
		for i := range out {
			out[i] = ulawToS16(f.Buffer[i])
		}
	}
	return out
}

// fromS16 writes pcm into f in target format, resizing f.Buffer and
// updating f.Format/SampleCount/Channels to stay internally consistent.
func fromS16(f *media.AudioFrame, pcm []int16, target media.SampleFormat) {
	bps := target.BytesPerSample()
	f.Buffer = make([]byte, len(pcm)*bps)
	switch target {
	case media.FormatS16LE:
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(f.Buffer[i*2:i*2+2], uint16(s))
		}
	case media.FormatFloat32:
		for i, s := range pcm {
			bits := math.Float32bits(float32(s) / 32768.0)
			binary.LittleEndian.PutUint32(f.Buffer[i*4:i*4+4], bits)
		}
	case media.FormatALaw:
		for i, s := range pcm {
			f.Buffer[i] = s16ToAlaw(s)
		}
	case media.FormatULaw:
		for i, s := range pcm {
			f.Buffer[i] = s16ToUlaw(s)
		}
	}
	f.Format = target
}

func floatToS16(v float32) int16 {
	s := v * 32768.0
	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}
	return int16(s)
}

// alawToS16/ulawToS16/s16ToAlaw/s16ToUlaw are only reached for the rare
// mixed-format bridge path (companded capture feeding a PCM-oriented
// filter chain); the primary G.711 codec path uses
// github.com/zaf/g711 directly (see codec/g711.go). A tiny standalone
// A-law/µ-law sample transcoder has no separate library in the pack, so
// it is implemented with the standard bit-shift formulas here rather
// than invented "support".
func alawToS16(b byte) int16 {
	b ^= 0x55
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := int32(mantissa)<<4 + 8
	if exponent != 0 {
		sample += 0x100
		sample <<= exponent - 1
	}
	if sign == 0 {
		sample = -sample
	}
	return int16(sample)
}

func ulawToS16(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := int32(mantissa)<<3 + 0x84
	sample <<= exponent
	sample -= 0x84
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

func s16ToAlaw(s int16) byte {
	sign := byte(0x80)
	if s < 0 {
		sign = 0
		s = -s
	}
	if int32(s) > 32635 {
		s = 32635
	}
	v := int32(s)
	var exponent int32 = 7
	for mask := int32(0x4000); v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> uint(exponent+3)) & 0x0F
	if exponent == 0 {
		mantissa = (v >> 4) & 0x0F
	}
	enc := byte(exponent<<4) | byte(mantissa) | sign
	return enc ^ 0x55
}

func s16ToUlaw(s int16) byte {
	const bias = 0x84
	sign := byte(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	v := int32(s) + bias
	if v > 0x7FFF {
		v = 0x7FFF
	}
	var exponent int32 = 7
	for mask := int32(0x4000); v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> uint(exponent+3)) & 0x0F
	enc := ^(sign | byte(exponent<<4) | byte(mantissa))
	return enc
}
