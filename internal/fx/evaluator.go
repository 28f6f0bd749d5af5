package fx

import (
	"math"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/backend"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/tempo"
)

// Params is one frame's post-processing parameter set. It is backend
// independent: the full chain maps it onto shader uniforms, safe mode keeps
// only Exposure/Fog, and the 2D canvas fallback applies Vignette/Grain
// directly in pixel space.
type Params struct {
	Bloom    float64 `json:"bloom"`
	Vignette float64 `json:"vignette"`
	Grain    float64 `json:"grain"`
	Sparkle  float64 `json:"sparkle"`
	Exposure float64 `json:"exposure"`
	Fog      float64 `json:"fog"`
	Time     float64 `json:"time"`
	Pulse    float64 `json:"pulse"`
	Accent   float64 `json:"accent"`
}

// Exposure bounds before the fade window applies; the fade alone may take
// exposure all the way to black.
const (
	MinExposure = 0.25
	MaxExposure = 1.8
)

const (
	sparkleSmoothing = 0.2
	fogSmoothing     = 0.05
)

// Evaluator computes Params per frame. Sparkle and fog are the two smoothed
// signals: they ease toward their targets instead of jumping, so beat-to-beat
// flicker reads as glow rather than strobing.
type Evaluator struct {
	sparkle float64
	fog     float64
	primed  bool
}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Reset drops the smoothed state; the next Evaluate snaps fog straight to its
// target instead of easing in from zero. Called on scene swaps.
func (e *Evaluator) Reset() {
	e.sparkle = 0
	e.fog = 0
	e.primed = false
}

// Evaluate computes the frame's Params from the shot's FX program, the eased
// shot-local progress, the absolute clip time and the tempo state.
func (e *Evaluator) Evaluate(shot *scene.Shot, easedT, t float64, ts tempo.State) Params {
	cfg := &shot.FX

	bloom := cfg.Bloom.Lerp(easedT) +
		cfg.NeonPulse*(ts.Energy*0.7+ts.Pulse*0.45+ts.Accent*0.6+math.Abs(ts.Wave)*0.2)
	if bloom < 0 {
		bloom = 0
	}

	vignette := clamp01(cfg.Vignette.Lerp(easedT))

	sparkleTarget := cfg.Sparkle * clamp01(0.3*ts.Pulse+0.3*ts.Accent+0.25*ts.Energy+0.25*ts.AudioPulse+0.15*math.Abs(ts.Wave))
	e.sparkle = lerp(e.sparkle, sparkleTarget, sparkleSmoothing)

	grain := clamp01(0.16 + ts.Energy*0.12 + e.sparkle*0.14 + ts.BeatPulse*0.05)

	accentFlash := 0.5 * cfg.Flash
	exposure := clamp(cfg.Exposure+cfg.Flash*(ts.Pulse+ts.Energy*0.8)+accentFlash*ts.Accent, MinExposure, MaxExposure)
	exposure *= fadeFactor(cfg.Fade, t)

	fogTarget := cfg.Haze + cfg.HazePulse*(ts.Pulse+ts.Accent*0.5+ts.Energy*0.5)
	if fogTarget < 0 {
		fogTarget = 0
	}
	if !e.primed {
		e.fog = fogTarget
		e.primed = true
	} else {
		e.fog = lerp(e.fog, fogTarget, fogSmoothing)
	}

	return Params{
		Bloom:    bloom,
		Vignette: vignette,
		Grain:    grain,
		Sparkle:  e.sparkle,
		Exposure: exposure,
		Fog:      e.fog,
		Time:     t,
		Pulse:    ts.Pulse,
		Accent:   ts.Accent,
	}
}

// fadeFactor ramps 1 → 0 linearly across the fade window; 1 before it, 0 at
// and past its end.
func fadeFactor(fade *scene.Range, t float64) float64 {
	if fade == nil {
		return 1
	}
	span := fade[1] - fade[0]
	if span <= 0 {
		if t >= fade[1] {
			return 0
		}
		return 1
	}
	return clamp01(1 - (t-fade[0])/span)
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

// Tier is the rendering degradation level resolved at startup.
type Tier int

const (
	// TierFull drives the whole chain: bloom, grade (vignette/grain/
	// sparkle), exposure and fog.
	TierFull Tier = iota
	// TierSafe keeps the bare render pass: exposure and fog only.
	TierSafe
	// TierNone means no chain at all; the 2D canvas consumes Params
	// directly.
	TierNone
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierSafe:
		return "safe"
	default:
		return "none"
	}
}

// Apply writes Params onto the composer according to the tier. Safe mode
// skips every effect uniform (those passes were never constructed); exposure
// and fog are renderer-level and always land.
func Apply(c backend.Composer, p Params, tier Tier) {
	if c == nil {
		return
	}
	switch tier {
	case TierFull:
		c.SetUniform(backend.UBloomStrength, p.Bloom)
		c.SetUniform(backend.UVignette, p.Vignette)
		c.SetUniform(backend.UGrain, p.Grain)
		c.SetUniform(backend.USparkle, p.Sparkle)
		c.SetUniform(backend.UTime, p.Time)
		c.SetUniform(backend.UPulse, p.Pulse)
		c.SetUniform(backend.UAccent, p.Accent)
		c.SetExposure(p.Exposure)
		c.SetFog(p.Fog)
	case TierSafe, TierNone:
		c.SetExposure(p.Exposure)
		c.SetFog(p.Fog)
	}
}
