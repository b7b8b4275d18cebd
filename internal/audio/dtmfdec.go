package audio

import "math"

var dtmfLowFreqs = []float64{697, 770, 852, 941}
var dtmfHighFreqs = []float64{1209, 1336, 1477, 1633}
var dtmfGrid = [4][4]byte{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// goertzel evaluates the Goertzel single-bin DFT magnitude of samples at
// freq/sampleRate, the standard cheap alternative to a full FFT for
// detecting one known tone — the same algorithmic family
// original_source/src/dtmf.c's generator uses in reverse for synthesis.
func goertzel(samples []int16, freq float64, sampleRate int) float64 {
	k := int(0.5 + float64(len(samples))*freq/float64(sampleRate))
	omega := 2 * math.Pi * float64(k) / float64(len(samples))
	coeff := 2 * math.Cos(omega)
	var s0, s1, s2 float64
	for _, samp := range samples {
		s0 = coeff*s1 - s2 + float64(samp)
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// ToneDecoder detects a DTMF digit in a block of samples by evaluating
// all 8 standard frequencies via Goertzel and picking the strongest
// low/high pair, requiring both to clear a minimum energy. No twist or
// dominance check against the other rows/columns is made.
type ToneDecoder struct {
	sampleRate int
}

func NewToneDecoder(sampleRate int) *ToneDecoder {
	return &ToneDecoder{sampleRate: sampleRate}
}

// Detect returns the decoded digit and true if the strongest low and
// high DTMF tones in block both clear the minimum energy.
func (d *ToneDecoder) Detect(block []int16) (byte, bool) {
	if len(block) < 64 {
		return 0, false
	}
	var lowMag, highMag [4]float64
	for i, f := range dtmfLowFreqs {
		lowMag[i] = goertzel(block, f, d.sampleRate)
	}
	for i, f := range dtmfHighFreqs {
		highMag[i] = goertzel(block, f, d.sampleRate)
	}

	li, lv := argmax(lowMag[:])
	hi, hv := argmax(highMag[:])

	const minEnergy = 1e8
	if lv < minEnergy || hv < minEnergy {
		return 0, false
	}
	return dtmfGrid[li][hi], true
}

func argmax(v []float64) (int, float64) {
	bi, bv := 0, v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > bv {
			bi, bv = i, v[i]
		}
	}
	return bi, bv
}
