package tempo

import (
	"math"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
)

// Fraction of the spectrum treated as "low end" when sampling live energy,
// and the gain applied to its average before clamping.
const (
	lowBandFraction = 0.22
	lowBandGain     = 1.9
)

// Onset detector tuning. A rise is energy punching through the decaying peak
// envelope; two rises between 0.25s and 1.5s apart re-estimate the tempo.
const (
	riseFloor    = 0.4
	riseRatio    = 1.25
	peakDecay    = 0.985
	minRiseGap   = 0.25
	maxRiseGap   = 1.5
	retimeFactor = 0.12
)

// accentWindow is the leading slice of each beat over which the on-beat
// accent decays back to zero.
const accentWindow = 1.0 / 8.0

// Engine owns the TempoState and advances it once per frame. With an
// explicit beat list it walks the list; without one it runs a fixed-step
// ladder and, when live audio is attached, lets onsets bend the tempo.
type Engine struct {
	state    State
	beats    []float64
	analyser Analyser
	spectrum []float64

	// onset bookkeeping, reset alongside the beat indices
	lastRiseTime float64
}

func NewEngine() *Engine {
	e := &Engine{}
	e.Reset(scene.DefaultBPM)
	return e
}

// SetAnalyser attaches or detaches (nil) the live audio spectrum source.
func (e *Engine) SetAnalyser(a Analyser) {
	e.analyser = a
	e.spectrum = nil
	if a != nil {
		e.spectrum = make([]float64, a.Bins())
	}
}

// Apply adopts a freshly resolved scene: explicit beat lists are walked,
// synthesized grids are ignored in favor of the ladder so live audio can
// re-time playback. Always resets the state to BPM-derived defaults.
func (e *Engine) Apply(s *scene.Scene) {
	if s.BeatsSynthesized {
		e.beats = nil
	} else {
		e.beats = s.Beats
	}
	e.Reset(s.Meta.BPM)
}

// Reset rebuilds the state from a bare tempo. Called on scene apply, on user
// BPM changes, and indirectly by rewind detection.
func (e *Engine) Reset(bpm float64) {
	if !isFinite(bpm) || bpm <= 0 {
		bpm = scene.DefaultBPM
	}
	bpm = clamp(bpm, scene.MinBPM, scene.MaxBPM)
	beat := 60.0 / bpm
	e.state = State{
		BPM:          bpm,
		BeatDuration: beat,
		BarDuration:  beat * 4,
		NextBeatTime: e.firstBeat(beat),
	}
	e.lastRiseTime = -1
}

func (e *Engine) firstBeat(beatDuration float64) float64 {
	if len(e.beats) > 0 {
		return e.beats[0]
	}
	return beatDuration
}

// Snapshot returns a value copy of the current state.
func (e *Engine) Snapshot() State { return e.state }

// SampleEnergy reports loudness in [0,1] for the given time. Live path:
// average of the low-end spectrum bins, scaled. Fallback path: a synthetic
// curve shaped from beat and bar phase so silent playback still feels
// musical. Pure read; Update stores the result.
func (e *Engine) SampleEnergy(now float64) float64 {
	if e.analyser != nil {
		n := e.analyser.Spectrum(e.spectrum)
		if n == 0 {
			return 0
		}
		low := int(float64(n)*lowBandFraction + 0.5)
		if low < 1 {
			low = 1
		}
		if low > n {
			low = n
		}
		sum := 0.0
		for _, m := range e.spectrum[:low] {
			if isFinite(m) {
				sum += m
			}
		}
		return clamp01(sum / float64(low) * lowBandGain)
	}

	s := &e.state
	beatPhase := phaseOf(now, s.BeatDuration)
	barPhase := phaseOf(now, s.BarDuration)
	b := math.Sin(math.Pi * beatPhase)
	bar := math.Sin(math.Pi * barPhase)
	return clamp01(0.38 + 0.34*b*b + 0.22*bar*bar)
}

// Update advances beat bookkeeping to now and recomputes every derived
// signal. Rewinds (now before the last beat) re-seed the indices first so a
// restart never leaves the last beat in the future.
func (e *Engine) Update(now float64) {
	s := &e.state

	if now < s.LastBeatTime {
		s.BeatIndex = 0
		s.LastBeatTime = 0
		s.NextBeatTime = e.firstBeat(s.BeatDuration)
		e.lastRiseTime = -1
	}

	e.advanceBeats(now)

	energy := e.SampleEnergy(now)
	s.Energy = clamp01(energy)

	if e.analyser != nil && len(e.beats) == 0 {
		e.retime(now, s.Energy)
	}

	span := s.NextBeatTime - s.LastBeatTime
	phase := 0.0
	if span > 1e-9 {
		phase = clamp01((now - s.LastBeatTime) / span)
	}

	sinP := math.Sin(math.Pi * phase)
	s.BeatPulse = clamp01(sinP * sinP)

	target := math.Max(0, (s.Energy-0.22)*1.35)
	s.AudioPulse = clamp01(lerp(s.AudioPulse, target, 0.25))

	s.Pulse = math.Min(1, 0.6*s.BeatPulse+0.7*s.AudioPulse)
	s.Wave = math.Sin(2*math.Pi*phase) * (0.6 + 0.4*s.AudioPulse)

	beatAccent := 0.0
	window := s.BeatDuration * accentWindow
	if since := now - s.LastBeatTime; since >= 0 && since < window && window > 0 {
		beatAccent = 1 - since/window
	}
	audioAccent := math.Max(0, (s.AudioPulse-0.45)*1.6)
	s.Accent = clamp01(math.Max(beatAccent, audioAccent))
}

func (e *Engine) advanceBeats(now float64) {
	s := &e.state

	if len(e.beats) > 0 {
		for s.BeatIndex < len(e.beats) && now >= e.beats[s.BeatIndex] {
			s.LastBeatTime = e.beats[s.BeatIndex]
			s.BeatIndex++
		}
		if s.BeatIndex < len(e.beats) {
			s.NextBeatTime = e.beats[s.BeatIndex]
			return
		}
		s.NextBeatTime = s.LastBeatTime + s.BeatDuration
	}

	// Ladder stepping past the list tail, or the whole timeline when no
	// explicit list exists. Closed form keeps a far scrub O(1).
	if now >= s.NextBeatTime && s.BeatDuration > 0 {
		crossed := math.Floor((now-s.NextBeatTime)/s.BeatDuration) + 1
		if crossed > 1e9 {
			crossed = 1e9
		}
		s.BeatIndex += int(crossed)
		s.LastBeatTime = s.NextBeatTime + (crossed-1)*s.BeatDuration
		s.NextBeatTime = s.LastBeatTime + s.BeatDuration
	}
}

// retime nudges beatDuration toward the last onset-to-onset interval. Only
// active in ladder mode with live audio, the one place tempo self-corrects.
func (e *Engine) retime(now, energy float64) {
	s := &e.state
	prevPeak := s.LastAudioPeak

	if energy > riseFloor && energy > prevPeak*riseRatio {
		if e.lastRiseTime >= 0 {
			interval := now - e.lastRiseTime
			if interval >= minRiseGap && interval <= maxRiseGap {
				bpm := clamp(60/interval, scene.MinBPM, scene.MaxBPM)
				targetBeat := 60 / bpm
				s.BeatDuration = lerp(s.BeatDuration, targetBeat, retimeFactor)
				s.BarDuration = s.BeatDuration * 4
				s.BPM = 60 / s.BeatDuration
			}
		}
		e.lastRiseTime = now
	}

	if energy > s.LastAudioPeak {
		s.LastAudioPeak = clamp01(energy)
	} else {
		s.LastAudioPeak *= peakDecay
	}
}

func phaseOf(t, period float64) float64 {
	if period <= 0 {
		return 0
	}
	p := math.Mod(t, period) / period
	if p < 0 {
		p += 1
	}
	return p
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp01(x float64) float64 { return clamp(x, 0, 1) }

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
