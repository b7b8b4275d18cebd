package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sipagent/internal/media"
)

// dumpState owns one open WAV file per stream direction, written with a
// bare-minimum canonical-PCM header (no library in the pack writes WAV
// headers; go-audio/riff was dropped along with the rest of the
// teacher's Telegram-audio stack per DESIGN.md, so the dozen-line header
// below is hand-written rather than reaching for a new dependency for a
// debug-only filter).
type dumpState struct {
	f           *os.File
	dataBytes   uint32
	sampleRate  int
	channels    int
}

// NewDumpFilter builds the sndfile filter: opens dir/<direction>-<ts>.wav
// and writes raw samples as they pass through, without altering the
// stream (spec §4.4). Grounded on
// original_source/modules/sndfile/sndfile.c.
func NewDumpFilter(dir, direction string) Filter {
	open := func(p Params) (FilterState, error) {
		if dir == "" {
			return nil, Skip
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%d.wav", direction, time.Now().UnixNano()))
		f, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		st := &dumpState{f: f, sampleRate: p.SampleRate, channels: p.Channels}
		writeWAVHeaderPlaceholder(f, p.SampleRate, p.Channels)
		return st, nil
	}
	write := func(stAny FilterState, f *media.AudioFrame) error {
		st := stAny.(*dumpState)
		pcm := toS16(f)
		buf := make([]byte, len(pcm)*2)
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
		}
		n, err := st.f.Write(buf)
		st.dataBytes += uint32(n)
		return err
	}
	return Filter{
		Name:         "sndfile",
		EncodeUpdate: open,
		EncodeFrame:  write,
		DecodeUpdate: open,
		DecodeFrame:  write,
	}
}

func writeWAVHeaderPlaceholder(f *os.File, sampleRate, channels int) {
	// Sizes are placeholders (streamed, unknown length); most players
	// tolerate a zero/oversized RIFF size for a live capture dump.
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * 2
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	_, _ = f.Write(header)
}
