package tempo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
)

type stubAnalyser struct{ mags []float64 }

func (a *stubAnalyser) Bins() int                  { return len(a.mags) }
func (a *stubAnalyser) Spectrum(dst []float64) int { return copy(dst, a.mags) }

func checkRanges(t *testing.T, s State) {
	t.Helper()
	for name, v := range map[string]float64{
		"pulse":      s.Pulse,
		"accent":     s.Accent,
		"beatPulse":  s.BeatPulse,
		"audioPulse": s.AudioPulse,
		"energy":     s.Energy,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Fatalf("%s out of range: %v", name, v)
		}
	}
	if math.IsNaN(s.Wave) || s.Wave < -1 || s.Wave > 1 {
		t.Fatalf("wave out of range: %v", s.Wave)
	}
}

func TestSignalsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1177))
	an := &stubAnalyser{mags: make([]float64, 64)}
	e := NewEngine()
	e.SetAnalyser(an)

	now := 0.0
	for frame := 0; frame < 10000; frame++ {
		switch frame % 7 {
		case 0: // silence
			for i := range an.mags {
				an.mags[i] = 0
			}
		case 1: // hostile values
			for i := range an.mags {
				an.mags[i] = rng.Float64()*40 - 20
			}
		case 2:
			an.mags[0] = math.NaN()
			an.mags[1] = math.Inf(1)
		default:
			for i := range an.mags {
				an.mags[i] = rng.Float64()
			}
		}
		if frame%997 == 0 {
			e.SetAnalyser(nil) // dropout
		} else if frame%997 == 1 {
			e.SetAnalyser(an)
		}
		if frame%1500 == 749 {
			e.Reset(scene.MinBPM + rng.Float64()*(scene.MaxBPM-scene.MinBPM))
		}
		if frame%2000 == 1234 {
			now = 0 // hard rewind
		}
		now += rng.Float64() * 0.05
		e.Update(now)
		checkRanges(t, e.Snapshot())
	}
}

func TestBeatWalkExplicitList(t *testing.T) {
	sc := &scene.Scene{
		Meta:  scene.Meta{BPM: 60, DurationSeconds: 60},
		Beats: []float64{0, 1, 2, 3},
	}
	e := NewEngine()
	e.Apply(sc)

	e.Update(0.5)
	s := e.Snapshot()
	assert.Equal(t, 1, s.BeatIndex)
	assert.Equal(t, 0.0, s.LastBeatTime)
	assert.Equal(t, 1.0, s.NextBeatTime)
	assert.InDelta(t, 1.0, s.BeatPulse, 1e-9, "sin^2 peaks mid-beat")

	e.Update(2.2)
	s = e.Snapshot()
	assert.Equal(t, 3, s.BeatIndex)
	assert.Equal(t, 2.0, s.LastBeatTime)
	assert.Equal(t, 3.0, s.NextBeatTime)

	// past the tail the ladder takes over at beatDuration spacing
	e.Update(5.5)
	s = e.Snapshot()
	assert.Equal(t, 5.0, s.LastBeatTime)
	assert.Equal(t, 6.0, s.NextBeatTime)
}

func TestRewindReseedsIndices(t *testing.T) {
	type beatTrace struct {
		idx        int
		last, next float64
		beatPulse  float64
	}
	trace := func(e *Engine, upTo float64) []beatTrace {
		var out []beatTrace
		for now := 0.0; now <= upTo; now += 1.0 / 60 {
			e.Update(now)
			s := e.Snapshot()
			out = append(out, beatTrace{s.BeatIndex, s.LastBeatTime, s.NextBeatTime, s.BeatPulse})
		}
		return out
	}

	sc := &scene.Scene{
		Meta:  scene.Meta{BPM: 104, DurationSeconds: 60},
		Beats: []float64{0, 0.55, 1.2, 1.74, 2.4, 3.0},
	}

	fresh := NewEngine()
	fresh.Apply(sc)
	want := trace(fresh, 8)

	replayed := NewEngine()
	replayed.Apply(sc)
	_ = trace(replayed, 8) // first run
	got := trace(replayed, 8)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].idx, got[i].idx, "frame %d index", i)
		assert.Equal(t, want[i].last, got[i].last, "frame %d lastBeat", i)
		assert.Equal(t, want[i].next, got[i].next, "frame %d nextBeat", i)
		assert.InDelta(t, want[i].beatPulse, got[i].beatPulse, 1e-12, "frame %d beatPulse", i)
	}
}

func TestRetimeConvergesOnOnsets(t *testing.T) {
	quiet := make([]float64, 32)
	burst := make([]float64, 32)
	for i := range burst {
		quiet[i] = 0.02
		burst[i] = 0.474 // low-band average * gain ~= 0.9 energy
	}

	an := &stubAnalyser{mags: quiet}
	e := NewEngine()
	e.SetAnalyser(an)
	e.Reset(80)

	const fps = 60
	for frame := 0; frame < 30*fps; frame++ {
		if frame%(fps/2) == 0 { // onset every 0.5s => 120 BPM
			an.mags = burst
		} else {
			an.mags = quiet
		}
		e.Update(float64(frame) / fps)
	}

	assert.InDelta(t, 120, e.Snapshot().BPM, 2.0)
}

func TestRetimeIgnoresOutOfWindowIntervals(t *testing.T) {
	quiet := make([]float64, 32)
	burst := make([]float64, 32)
	for i := range burst {
		burst[i] = 0.6
	}

	an := &stubAnalyser{mags: quiet}
	e := NewEngine()
	e.SetAnalyser(an)
	e.Reset(100)

	// Onsets 3s apart sit outside the 0.25..1.5s window.
	const fps = 60
	for frame := 0; frame < 12*fps; frame++ {
		if frame%(3*fps) == 0 {
			an.mags = burst
		} else {
			an.mags = quiet
		}
		e.Update(float64(frame) / fps)
	}

	assert.InDelta(t, 100, e.Snapshot().BPM, 1e-9)
}

func TestAudioPulseSmoothing(t *testing.T) {
	loud := make([]float64, 16)
	for i := range loud {
		loud[i] = 1
	}
	an := &stubAnalyser{mags: loud}
	e := NewEngine()
	e.SetAnalyser(an)

	for frame := 0; frame < 200; frame++ {
		e.Update(float64(frame) / 60)
	}
	require.Greater(t, e.Snapshot().AudioPulse, 0.95, "converges toward saturated target")

	an.mags = make([]float64, 16) // dropout
	prev := e.Snapshot().AudioPulse
	for frame := 200; frame < 260; frame++ {
		e.Update(float64(frame) / 60)
		cur := e.Snapshot().AudioPulse
		assert.LessOrEqual(t, cur, prev+1e-12, "decays monotonically after dropout")
		prev = cur
	}
	assert.Less(t, prev, 0.01)
}

func TestAccentDecaysAcrossBeatWindow(t *testing.T) {
	e := NewEngine()
	e.Reset(60) // 1s beats, 0.125s accent window

	e.Update(1.0)
	assert.InDelta(t, 1.0, e.Snapshot().Accent, 1e-9)

	e.Update(1.0625)
	assert.InDelta(t, 0.5, e.Snapshot().Accent, 1e-9)

	e.Update(1.2)
	assert.InDelta(t, 0.0, e.Snapshot().Accent, 1e-9)
}

func TestSyntheticEnergyFollowsBeat(t *testing.T) {
	e := NewEngine()
	e.Reset(60)

	onBeat := e.SampleEnergy(0)
	midBeat := e.SampleEnergy(0.5)
	assert.Greater(t, midBeat, onBeat)

	for now := 0.0; now < 16; now += 0.05 {
		v := e.SampleEnergy(now)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestApplyPrefersExplicitBeats(t *testing.T) {
	explicit := &scene.Scene{
		Meta:  scene.Meta{BPM: 120, DurationSeconds: 10},
		Beats: []float64{0.2, 0.9, 1.7},
	}
	e := NewEngine()
	e.Apply(explicit)
	e.Update(1.0)
	assert.Equal(t, 1.7, e.Snapshot().NextBeatTime, "list drives the walk")

	synth := &scene.Scene{
		Meta:             scene.Meta{BPM: 120, DurationSeconds: 10},
		Beats:            []float64{0, 0.5, 1.0},
		BeatsSynthesized: true,
	}
	e.Apply(synth)
	e.Update(1.26)
	s := e.Snapshot()
	assert.InDelta(t, 1.0, s.LastBeatTime, 1e-9, "ladder ignores the synthesized grid")
	assert.InDelta(t, 1.5, s.NextBeatTime, 1e-9)
}
