package audio

import "math"

// dtmfFreqs maps each DTMF digit to its low/high tone pair per ITU-T
// Q.23, carried over from original_source/src/dtmf.c's frequency table.
var dtmfFreqs = map[byte][2]float64{
	'1': {697, 1209}, '2': {697, 1336}, '3': {697, 1477}, 'A': {697, 1633},
	'4': {770, 1209}, '5': {770, 1336}, '6': {770, 1477}, 'B': {770, 1633},
	'7': {852, 1209}, '8': {852, 1336}, '9': {852, 1477}, 'C': {852, 1633},
	'*': {941, 1209}, '0': {941, 1336}, '#': {941, 1477}, 'D': {941, 1633},
}

// toneOsc is a recursive sinusoid generator driven by complex-number
// rotation (z_{n+1} = z_n * e^{iω}) instead of calling math.Sin/Cos per
// sample, the same technique original_source/src/dtmf.c uses to
// generate tone samples cheaply.
type toneOsc struct {
	reC, imC float64 // rotation step e^{iω}
	re, im   float64 // current phasor
}

func newToneOsc(freq float64, sampleRate int) *toneOsc {
	omega := 2 * math.Pi * freq / float64(sampleRate)
	return &toneOsc{
		reC: math.Cos(omega), imC: math.Sin(omega),
		re: 1, im: 0,
	}
}

func (o *toneOsc) Next() float64 {
	nre := o.re*o.reC - o.im*o.imC
	nim := o.re*o.imC + o.im*o.reC
	o.re, o.im = nre, nim
	return o.im
}

// ToneGenerator synthesises one DTMF digit's tone + silence at a given
// amplitude and sample rate, queued by the DTMF encode filter
// (filters_dtmf.go).
type ToneGenerator struct {
	sampleRate  int
	amplitude   int16
	toneMS      int
	gapMS       int

	queue []byte

	low, high *toneOsc
	remaining int // samples left to emit for the current digit (tone, then 0 for gap)
	inGap     bool
	gapLeft   int
}

// NewToneGenerator matches original_source/src/dtmf.c's default
// 100ms tone / 100ms gap timing unless overridden.
func NewToneGenerator(sampleRate int, amplitude int16, toneMS, gapMS int) *ToneGenerator {
	if toneMS <= 0 {
		toneMS = 100
	}
	if gapMS <= 0 {
		gapMS = 100
	}
	return &ToneGenerator{sampleRate: sampleRate, amplitude: amplitude, toneMS: toneMS, gapMS: gapMS}
}

// Enqueue queues digits for playout; unknown characters are ignored.
func (g *ToneGenerator) Enqueue(digits string) {
	for i := 0; i < len(digits); i++ {
		d := digits[i]
		if _, ok := dtmfFreqs[upperDigit(d)]; ok {
			g.queue = append(g.queue, upperDigit(d))
		}
	}
}

func upperDigit(b byte) byte {
	if b >= 'a' && b <= 'd' {
		return b - 'a' + 'A'
	}
	return b
}

func (g *ToneGenerator) Active() bool {
	return len(g.queue) > 0 || g.remaining > 0 || g.gapLeft > 0
}

// Fill writes len(out) samples of tone/silence into out, advancing the
// internal queue; returns the number of samples actually written (equal
// to len(out) unless the queue drains mid-buffer, in which case the
// remainder is left for the caller to fill with real audio).
func (g *ToneGenerator) Fill(out []int16) int {
	i := 0
	for i < len(out) {
		if g.gapLeft > 0 {
			out[i] = 0
			g.gapLeft--
			i++
			continue
		}
		if g.remaining > 0 {
			out[i] = mixTone(g.low.Next(), g.high.Next(), g.amplitude)
			g.remaining--
			if g.remaining == 0 {
				g.gapLeft = g.gapMS * g.sampleRate / 1000
			}
			i++
			continue
		}
		if len(g.queue) == 0 {
			return i
		}
		digit := g.queue[0]
		g.queue = g.queue[1:]
		freqs := dtmfFreqs[digit]
		g.low = newToneOsc(freqs[0], g.sampleRate)
		g.high = newToneOsc(freqs[1], g.sampleRate)
		g.remaining = g.toneMS * g.sampleRate / 1000
	}
	return i
}

func mixTone(low, high float64, amplitude int16) int16 {
	v := (low + high) / 2 * float64(amplitude)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
