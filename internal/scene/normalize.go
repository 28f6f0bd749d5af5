package scene

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Raw payload shapes. Pointers distinguish "absent" from zero so defaults
// only fill genuine gaps. Nothing outside this file touches untyped input.

type rawScene struct {
	Meta  *rawMeta  `json:"meta"`
	Beats []float64 `json:"beats"`
	Shots []rawShot `json:"shots"`
}

type rawMeta struct {
	Title    string   `json:"title"`
	Duration *float64 `json:"duration"`
	BPM      *float64 `json:"bpm"`
	Seed     *int64   `json:"seed"`
}

type rawShot struct {
	Name   string     `json:"name"`
	Time   []float64  `json:"time"`
	Path   *rawPath   `json:"path"`
	Camera *rawCamera `json:"camera"`
	FX     *rawFX     `json:"fx"`
}

type rawPath struct {
	Points [][]float64 `json:"points"`
}

type rawCamera struct {
	FOV         []float64 `json:"fov"`
	RollDeg     []float64 `json:"rollDeg"`
	Oscillation *float64  `json:"oscillation"`
	Ease        string    `json:"ease"`
	TempoFOV    *float64  `json:"tempoFov"`
	TempoRoll   *float64  `json:"tempoRoll"`
	TempoShake  *float64  `json:"tempoShake"`
	TempoPush   *float64  `json:"tempoPush"`
	TempoLift   *float64  `json:"tempoLift"`
	TempoWarp   *float64  `json:"tempoWarp"`
}

type rawFX struct {
	Bloom     []float64 `json:"bloom"`
	Vignette  []float64 `json:"vignette"`
	NeonPulse *float64  `json:"neonPulse"`
	Sparkle   *float64  `json:"sparkle"`
	Flash     *float64  `json:"flash"`
	Exposure  *float64  `json:"exposure"`
	Haze      *float64  `json:"haze"`
	HazePulse *float64  `json:"hazePulse"`
	Fade      []float64 `json:"fade"`
}

// Per-field defaults for absent or non-finite values.
var (
	defaultFOV      = Range{60, 68}
	defaultRoll     = Range{0, 0}
	defaultBloom    = Range{0.18, 0.28}
	defaultVignette = Range{0.28, 0.4}
)

const (
	defaultEase     = "smooth"
	defaultExposure = 1.0
	defaultHaze     = 0.018
)

// defaultPath is the hardcoded 5-point glide used when a shot has no usable
// control points, and by the minimal fallback shot.
func defaultPath() []mgl64.Vec3 {
	return []mgl64.Vec3{
		{-42, 16, 64},
		{-18, 13, 34},
		{8, 11, 12},
		{30, 14, -18},
		{54, 18, -52},
	}
}

// Normalize turns an arbitrary payload into a fully-populated Scene. It never
// fails: nil input, garbage bytes, partial objects and out-of-range numbers
// all land on documented defaults. The result always has at least one shot,
// windows sorted and non-overlapping inside [0, TargetDuration], and a beat
// list spanning the whole clip.
func Normalize(raw []byte) *Scene {
	var rs rawScene
	if len(raw) > 0 {
		// A decode error leaves rs zero-valued, which normalizes to the
		// minimal scene below.
		_ = json.Unmarshal(raw, &rs)
	}

	s := &Scene{}
	s.Meta = normalizeMeta(rs.Meta)
	s.Beats = rs.Beats

	for i := range rs.Shots {
		if shot, ok := normalizeShot(&rs.Shots[i], s.Meta.DurationSeconds); ok {
			s.Shots = append(s.Shots, shot)
		}
	}
	sort.SliceStable(s.Shots, func(i, j int) bool { return s.Shots[i].Start < s.Shots[j].Start })
	s.Shots = clipOverlaps(s.Shots)

	if len(s.Shots) == 0 {
		s.Shots = []Shot{minimalShot(s.Meta.DurationSeconds)}
	}

	RegenerateBeats(s)
	return s
}

// DefaultScene is the terminal fallback tier: the scene every resolver chain
// lands on when nothing else produced a payload.
func DefaultScene() *Scene {
	s := Normalize(nil)
	s.Meta.Title = "fallback glide"
	return s
}

func normalizeMeta(m *rawMeta) Meta {
	out := Meta{
		Title:           "drone night clip",
		DurationSeconds: TargetDuration,
		BPM:             DefaultBPM,
	}
	if m == nil {
		return out
	}
	if m.Title != "" {
		out.Title = m.Title
	}
	if m.BPM != nil {
		out.BPM = clampBPM(*m.BPM)
	}
	if m.Seed != nil {
		out.Seed = *m.Seed
	}
	// Duration is deliberately ignored: the platform exports fixed-length
	// clips and every downstream invariant assumes it.
	return out
}

func normalizeShot(r *rawShot, duration float64) (Shot, bool) {
	if len(r.Time) != 2 || !isFinite(r.Time[0]) || !isFinite(r.Time[1]) {
		return Shot{}, false
	}
	start := clamp(r.Time[0], 0, duration)
	end := clamp(r.Time[1], 0, duration)
	if end < start+minShotLen {
		return Shot{}, false
	}

	shot := Shot{
		Name:   r.Name,
		Start:  start,
		End:    end,
		Path:   normalizePath(r.Path),
		Camera: normalizeCamera(r.Camera),
		FX:     normalizeFX(r.FX, duration),
	}
	if shot.Name == "" {
		shot.Name = "glide"
	}
	return shot, true
}

func normalizePath(p *rawPath) []mgl64.Vec3 {
	if p == nil {
		return defaultPath()
	}
	pts := make([]mgl64.Vec3, 0, len(p.Points))
	for _, raw := range p.Points {
		if len(raw) < 3 || !isFinite(raw[0]) || !isFinite(raw[1]) || !isFinite(raw[2]) {
			continue
		}
		pts = append(pts, mgl64.Vec3{raw[0], raw[1], raw[2]})
	}
	if len(pts) < 2 {
		return defaultPath()
	}
	return pts
}

func normalizeCamera(c *rawCamera) CameraSpec {
	out := CameraSpec{
		FOV:     defaultFOV,
		RollDeg: defaultRoll,
		Ease:    defaultEase,
	}
	if c == nil {
		return out
	}
	out.FOV = rangeOf(c.FOV, defaultFOV)
	out.RollDeg = rangeOf(c.RollDeg, defaultRoll)
	out.Oscillation = numOf(c.Oscillation, 0)
	if c.Ease != "" {
		out.Ease = c.Ease
	}
	out.TempoFOV = numOf(c.TempoFOV, 0)
	out.TempoRoll = numOf(c.TempoRoll, 0)
	out.TempoShake = numOf(c.TempoShake, 0)
	out.TempoPush = numOf(c.TempoPush, 0)
	out.TempoLift = numOf(c.TempoLift, 0)
	out.TempoWarp = numOf(c.TempoWarp, 0)
	return out
}

func normalizeFX(f *rawFX, duration float64) FXSpec {
	out := FXSpec{
		Bloom:    defaultBloom,
		Vignette: defaultVignette,
		Exposure: defaultExposure,
		Haze:     defaultHaze,
	}
	if f == nil {
		return out
	}
	out.Bloom = rangeOf(f.Bloom, defaultBloom)
	out.Vignette = rangeOf(f.Vignette, defaultVignette)
	out.NeonPulse = numOf(f.NeonPulse, 0)
	out.Sparkle = numOf(f.Sparkle, 0)
	out.Flash = numOf(f.Flash, 0)
	out.Exposure = numOf(f.Exposure, defaultExposure)
	out.Haze = numOf(f.Haze, defaultHaze)
	out.HazePulse = numOf(f.HazePulse, 0)
	if len(f.Fade) == 2 && isFinite(f.Fade[0]) && isFinite(f.Fade[1]) {
		a := clamp(f.Fade[0], 0, duration)
		b := clamp(f.Fade[1], 0, duration)
		if b > a {
			out.Fade = &Range{a, b}
		}
	}
	return out
}

// clipOverlaps pushes each window's start up to the previous end. Windows
// squeezed under minShotLen are dropped. Input must already be sorted.
func clipOverlaps(shots []Shot) []Shot {
	out := shots[:0]
	prevEnd := 0.0
	for _, sh := range shots {
		if sh.Start < prevEnd {
			sh.Start = prevEnd
		}
		if sh.End < sh.Start+minShotLen {
			continue
		}
		out = append(out, sh)
		prevEnd = sh.End
	}
	return out
}

func minimalShot(duration float64) Shot {
	return Shot{
		Name:  "glide",
		Start: 0,
		End:   duration,
		Path:  defaultPath(),
		Camera: CameraSpec{
			FOV:         defaultFOV,
			RollDeg:     defaultRoll,
			Oscillation: 0.4,
			Ease:        defaultEase,
			TempoFOV:    3,
			TempoShake:  0.3,
		},
		FX: FXSpec{
			Bloom:     defaultBloom,
			Vignette:  defaultVignette,
			NeonPulse: 0.35,
			Sparkle:   0.3,
			Flash:     0.2,
			Exposure:  defaultExposure,
			Haze:      defaultHaze,
			HazePulse: 0.01,
		},
	}
}

func rangeOf(v []float64, def Range) Range {
	switch {
	case len(v) >= 2 && isFinite(v[0]) && isFinite(v[1]):
		return Range{v[0], v[1]}
	case len(v) == 1 && isFinite(v[0]):
		return Range{v[0], v[0]}
	default:
		return def
	}
}

func numOf(p *float64, def float64) float64 {
	if p == nil || !isFinite(*p) {
		return def
	}
	return *p
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
