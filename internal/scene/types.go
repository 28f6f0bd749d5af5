package scene

import "github.com/go-gl/mathgl/mgl64"

// TargetDuration is the platform clip length in seconds. Normalize force-sets
// every scene's duration to it regardless of what the payload claims.
const TargetDuration = 60.0

// DefaultBPM is used when a payload carries no usable tempo.
const DefaultBPM = 120.0

// BPM bounds shared with the tempo engine.
const (
	MinBPM = 40.0
	MaxBPM = 220.0
)

// minShotLen is the shortest time window a shot may occupy after clamping.
const minShotLen = 0.1

// Range is a [from, to] pair interpolated across shot-local progress.
type Range [2]float64

// Lerp maps t in [0,1] onto the range. t is not clamped here; callers ease
// and clamp progress before sampling.
func (r Range) Lerp(t float64) float64 {
	return r[0] + (r[1]-r[0])*t
}

// Meta carries scene-wide settings.
type Meta struct {
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	BPM             float64 `json:"bpm"`
	Seed            int64   `json:"seed"`
}

// CameraSpec shapes the camera program of one shot. The tempo* gains scale
// how strongly the pulse/accent signals modulate the base motion.
type CameraSpec struct {
	FOV         Range   `json:"fov"`
	RollDeg     Range   `json:"rollDeg"`
	Oscillation float64 `json:"oscillation"`
	Ease        string  `json:"ease"` // "linear","easeIn","easeOut","smooth","fastIn","fastOut"
	TempoFOV    float64 `json:"tempoFov"`
	TempoRoll   float64 `json:"tempoRoll"`
	TempoShake  float64 `json:"tempoShake"`
	TempoPush   float64 `json:"tempoPush"`
	TempoLift   float64 `json:"tempoLift"`
	TempoWarp   float64 `json:"tempoWarp"`
}

// FXSpec shapes the post-processing program of one shot. Fade, when present,
// linearly ramps exposure to zero across its window.
type FXSpec struct {
	Bloom     Range   `json:"bloom"`
	Vignette  Range   `json:"vignette"`
	NeonPulse float64 `json:"neonPulse"`
	Sparkle   float64 `json:"sparkle"`
	Flash     float64 `json:"flash"`
	Exposure  float64 `json:"exposure"`
	Haze      float64 `json:"haze"`
	HazePulse float64 `json:"hazePulse"`
	Fade      *Range  `json:"fade,omitempty"`
}

// Shot is a time-bounded camera+FX program. After Normalize the window is
// inside [0, duration], at least minShotLen long, and Path holds >= 2 points.
type Shot struct {
	Name   string       `json:"name"`
	Start  float64      `json:"start"`
	End    float64      `json:"end"`
	Path   []mgl64.Vec3 `json:"path"`
	Camera CameraSpec   `json:"camera"`
	FX     FXSpec       `json:"fx"`
}

// Len returns the shot's window length in seconds.
func (s *Shot) Len() float64 { return s.End - s.Start }

// Scene is the root entity. It is immutable once published: preset swaps
// replace it wholesale, never patch it in place.
type Scene struct {
	Meta  Meta      `json:"meta"`
	Beats []float64 `json:"beats"`
	Shots []Shot    `json:"shots"`

	// BeatsSynthesized records whether Beats came from the payload or from
	// the 60/bpm ladder, so a BPM change knows whether to relay the grid.
	BeatsSynthesized bool `json:"beatsSynthesized"`
}

// Duration is shorthand for the normalized clip length.
func (s *Scene) Duration() float64 { return s.Meta.DurationSeconds }

// WithBPM returns a copy of the scene at a new tempo. Synthesized beat grids
// are relaid at the new spacing. Explicit stamp lists are kept verbatim;
// normalization already filled their tail, and those stamps stay put.
func (s *Scene) WithBPM(bpm float64) *Scene {
	out := *s
	out.Meta.BPM = clampBPM(bpm)
	if s.BeatsSynthesized {
		out.Beats = nil
	} else {
		out.Beats = append([]float64(nil), s.Beats...)
	}
	out.Shots = s.Shots // shots are shared: nobody mutates them
	RegenerateBeats(&out)
	return &out
}

func clampBPM(bpm float64) float64 {
	if !isFinite(bpm) || bpm <= 0 {
		return DefaultBPM
	}
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}
