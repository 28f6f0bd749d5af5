// Package app wires the engine together and drives the frame loop.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/audio"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/backend"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/config"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/source"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/tempo"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/ws"
)

// Core bundles every long-lived component of one engine process. Once the
// conductor runs, it is the single writer for all of them; other goroutines
// only enqueue commands.
type Core struct {
	Cfg      *config.Config
	Clock    *clock.Clock
	Tempo    *tempo.Engine
	Camera   *camera.Evaluator
	FX       *fx.Evaluator
	Composer backend.Composer
	Tier     fx.Tier
	Rig      *backend.CameraRig
	Element  *audio.Element
	Speaker  *audio.Speaker
	Analyser *audio.Analyser
	State    *ws.State
	Cond     *Conductor
}

// InitCore resolves the scene, probes the backend and wires every component.
// It cannot fail: scene sources fall back to the builtin clip, the backend
// degrades tier by tier and a broken audio setup plays silent. The frame
// loop is not started; callers run Cond.Run or Cond.Export.
func InitCore(ctx context.Context, cfg *config.Config) *Core {
	if cfg == nil {
		cfg = config.Default()
	}
	core := &Core{Cfg: cfg}

	// Diagnostics reach websocket clients once the state hub exists;
	// anything emitted before that is log-only.
	diag := func(d diagnostics.Diagnostic) {
		if core.State != nil {
			core.State.PushDiag(d)
		}
	}

	// 1) Scene: remote URL, then embedded preset, then the builtin clip.
	res := source.NewResolver(cfg.SceneURL, cfg.Preset)
	res.Diag = diag
	scn := res.Resolve(ctx)

	// 2) Backend: probe the pass chain, degrading to safe or none.
	core.Composer, core.Tier = source.ResolveBackend(cfg.Backend, backend.DefaultRegistry(), diag)
	core.Rig = backend.NewCameraRig()

	// 3) Audio, all optional. A bad track logs and plays silent; a dead
	// output device loses monitoring, never the clock.
	core.Tempo = tempo.NewEngine()
	if cfg.Audio.Track != "" {
		if tr, err := audio.LoadTrack(cfg.Audio.Track); err != nil {
			log.Warn().Err(err).Str("track", cfg.Audio.Track).Msg("audio disabled")
		} else {
			core.Element = audio.NewElement(tr.Duration())
			core.Analyser = audio.NewAnalyser(tr)
			core.Tempo.SetAnalyser(core.Analyser)
			if cfg.Audio.Speaker {
				if sp, err := audio.NewSpeaker(tr); err != nil {
					log.Warn().Err(err).Msg("speaker unavailable")
				} else {
					core.Speaker = sp
					core.Element.AttachSink(sp)
				}
			}
		}
	}

	// 4) Evaluators, primed with the resolved scene.
	core.Camera = camera.NewEvaluator()
	core.Camera.ApplyScene(scn)
	core.FX = fx.NewEvaluator()

	// 5) Clock and tempo grid at the scene's duration and BPM.
	core.Clock = clock.New(scn.Duration())
	core.Tempo.Apply(scn)

	// 6) Conductor and its control surface.
	core.Cond = newConductor(core, scn, diag)
	core.State = ws.NewState(core.Cond.Controls(), source.Presets(), cfg.Preview.Width, cfg.Preview.Height)
	core.Cond.sink = core.State

	log.Info().
		Str("scene", scn.Meta.Title).
		Str("tier", core.Tier.String()).
		Bool("audio", core.Element != nil).
		Msg("core ready")
	return core
}

// Close releases the audio device. The conductor loop itself stops when the
// context passed to Run is cancelled.
func (c *Core) Close() {
	if c.Speaker != nil {
		if err := c.Speaker.Close(); err != nil {
			log.Debug().Err(err).Msg("speaker close")
		}
	}
}
