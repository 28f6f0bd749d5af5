package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

// fftSize is the analysis window. 1024 samples is ~23 ms at 44.1 kHz, short
// enough to catch kick transients and cheap enough to run every frame.
const fftSize = 1024

// Analyser exposes per-bin magnitudes of the window ending at the element's
// play position. It is the live implementation of the tempo engine's
// spectrum source.
type Analyser struct {
	mu    sync.Mutex
	track *Track
	pos   float64

	win []float64
	buf []complex128
}

func NewAnalyser(tr *Track) *Analyser {
	win := make([]float64, fftSize)
	for i := range win {
		win[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &Analyser{track: tr, win: win, buf: make([]complex128, fftSize)}
}

// SetTime moves the analysis playhead, in seconds.
func (a *Analyser) SetTime(t float64) {
	a.mu.Lock()
	a.pos = t
	a.mu.Unlock()
}

func (a *Analyser) Bins() int { return fftSize / 2 }

// Spectrum fills dst with Hann-windowed magnitudes for the window ending at
// the playhead, normalized so a full-scale sine peaks near 1.0. Returns the
// number of bins written. Positions before the first full window are
// zero-padded on the left.
func (a *Analyser) Spectrum(dst []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.track == nil || len(dst) == 0 {
		return 0
	}

	samples := a.track.samples
	end := int(a.pos * float64(a.track.SampleRate))
	if end > len(samples) {
		end = len(samples)
	}
	start := end - fftSize
	for i := 0; i < fftSize; i++ {
		v := 0.0
		if idx := start + i; idx >= 0 && idx < len(samples) {
			v = samples[idx]
		}
		a.buf[i] = complex(v*a.win[i], 0)
	}
	fft(a.buf)

	n := fftSize / 2
	if n > len(dst) {
		n = len(dst)
	}
	// Hann coherent gain is 0.5, single-sided spectrum doubles again.
	norm := 4.0 / float64(fftSize)
	for k := 0; k < n; k++ {
		dst[k] = clamp01(cmplx.Abs(a.buf[k]) * norm)
	}
	return n
}

// fft computes a radix-2 FFT in place.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	bits := 0
	for m := n; m > 1; m >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for b := 0; b < bits; b++ {
			if i&(1<<b) != 0 {
				j |= 1 << (bits - 1 - b)
			}
		}
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		wn := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				t := cmplx.Rect(1, wn*float64(k)) * x[start+k+half]
				x[start+k+half] = x[start+k] - t
				x[start+k] = x[start+k] + t
			}
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
