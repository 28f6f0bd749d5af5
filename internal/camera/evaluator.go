package camera

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/tempo"
)

// Pose is one frame's camera output: where the camera sits, what it looks
// at, its vertical field of view in degrees and its roll in degrees.
type Pose struct {
	Position mgl64.Vec3 `json:"position"`
	LookAt   mgl64.Vec3 `json:"lookAt"`
	FOV      float64    `json:"fov"`
	Roll     float64    `json:"roll"`
}

// FOV is clamped into this window so tempo kicks can never drive the
// projection degenerate.
const (
	MinFOV = 32.0
	MaxFOV = 110.0
)

// lookAhead samples the look-at target slightly further along the curve than
// the camera position, which keeps the view direction stable through tight
// knots.
const lookAhead = 0.04

// Per-axis phase rates for the hand-held oscillation. Mutually irrational-ish
// so the three sines never lock into a visible repeat.
var oscRates = [3]float64{1.0, 1.31, 0.73}

// SelectShot returns the shot whose [start,end) window contains t, resolving
// ties at abutting windows to the later shot (whose window actually contains
// t). A t inside an inter-shot gap lands on the next upcoming shot; t past
// every end clamps to the last shot. The scene must be normalized, i.e. hold
// at least one shot sorted by start.
func SelectShot(s *scene.Scene, t float64) (int, *scene.Shot) {
	for i := range s.Shots {
		if t < s.Shots[i].End {
			return i, &s.Shots[i]
		}
	}
	last := len(s.Shots) - 1
	return last, &s.Shots[last]
}

// Evaluator turns (scene, time, tempo state) into a camera pose. It is a pure
// function of those inputs plus two pieces of deliberate hidden state: the
// oscillation phase accumulators (continuous hand-held motion is not
// derivable from t alone) and the shake RNG, which is seeded from the scene
// so exports reproduce bit-identical jitter.
type Evaluator struct {
	shotIndex int
	shot      *scene.Shot
	curve     *Curve
	phase     [3]float64
	rng       *rand.Rand
	last      Pose
}

func NewEvaluator() *Evaluator {
	return &Evaluator{shotIndex: -1, rng: rand.New(rand.NewSource(1))}
}

// ApplyScene resets per-scene state: phases rewind, the shake RNG reseeds
// from the scene seed and the current shot is forgotten so the first Evaluate
// rebuilds the curve.
func (e *Evaluator) ApplyScene(s *scene.Scene) {
	seed := s.Meta.Seed
	if seed == 0 {
		seed = 1
	}
	e.shotIndex = -1
	e.shot = nil
	e.curve = nil
	e.phase = [3]float64{}
	e.rng = rand.New(rand.NewSource(seed))
	e.last = Pose{}
}

// Current reports the shot the last Evaluate resolved to.
func (e *Evaluator) Current() (int, *scene.Shot) { return e.shotIndex, e.shot }

// Evaluate computes the pose for time t and returns it together with the
// eased shot-local progress, which the effects evaluator shares. Changing
// shot identity is the only state transition: it rebuilds the path curve. A
// rebuild failure is logged and the previous curve (and on a cold start, the
// previous pose) is kept, so a malformed path degrades to a held frame
// instead of a crash.
func (e *Evaluator) Evaluate(s *scene.Scene, t float64, ts tempo.State) (Pose, float64) {
	idx, shot := SelectShot(s, t)
	if idx != e.shotIndex {
		e.shotIndex = idx
		e.shot = shot
		if c, err := NewCurve(shot.Path); err != nil {
			log.Warn().Err(err).Str("shot", shot.Name).Msg("shot path rebuild failed; keeping previous curve")
		} else {
			e.curve = c
		}
	}

	progress := 0.0
	if span := shot.Len(); span > 1e-9 {
		progress = clamp01((t - shot.Start) / span)
	}
	if w := shot.Camera.TempoWarp; w != 0 {
		progress = clamp01(progress + w*(ts.Wave*0.05+ts.Pulse*0.03))
	}
	easedT := ease(shot.Camera.Ease, progress)

	// Hand-held drift: the phases advance every frame, faster on the beat,
	// whether or not this shot renders them.
	rate := 0.08 + ts.Pulse*0.12
	for i := range e.phase {
		e.phase[i] += oscRates[i] * rate
	}

	if e.curve == nil {
		return e.last, easedT
	}

	pos := e.curve.Point(easedT)
	look := e.curve.Point(math.Min(1, easedT+lookAhead))

	if osc := shot.Camera.Oscillation; osc != 0 {
		pos = pos.Add(mgl64.Vec3{
			math.Sin(e.phase[0]) * osc,
			math.Sin(e.phase[1]) * osc * 0.6,
			math.Sin(e.phase[2]) * osc,
		})
	}

	if shot.Camera.TempoShake != 0 {
		shake := shot.Camera.TempoShake * (0.5*ts.Pulse + 0.35*ts.Accent + 0.3*ts.AudioPulse)
		pos = pos.Add(mgl64.Vec3{e.jitter() * shake, e.jitter() * shake, e.jitter() * shake})
	}

	fov := shot.Camera.FOV.Lerp(easedT) + shot.Camera.TempoFOV*(0.6*ts.Pulse+0.4*ts.Accent)
	fov = clamp(fov, MinFOV, MaxFOV)

	roll := shot.Camera.RollDeg.Lerp(easedT) + shot.Camera.TempoRoll*(ts.Pulse+0.5*ts.Accent)

	dir := look.Sub(pos)
	if l := dir.Len(); l > 1e-9 {
		dir = dir.Mul(1 / l)
	} else {
		dir = mgl64.Vec3{0, 0, -1}
	}
	if push := shot.Camera.TempoPush * (0.6*ts.Pulse + 0.4*ts.Accent); push != 0 {
		pos = pos.Add(dir.Mul(push))
	}
	if lift := shot.Camera.TempoLift * (0.5*ts.Pulse + 0.5*ts.Accent); lift != 0 {
		pos = pos.Add(mgl64.Vec3{0, lift, 0})
	}

	e.last = Pose{Position: pos, LookAt: look, FOV: fov, Roll: roll}
	return e.last, easedT
}

func (e *Evaluator) jitter() float64 { return e.rng.Float64()*2 - 1 }
