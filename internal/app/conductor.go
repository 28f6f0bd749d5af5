package app

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/backend/canvas"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/capture"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/source"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/ws"
)

// cmdBuffer bounds the control queue; a full queue drops the command rather
// than blocking a websocket reader.
const cmdBuffer = 16

// resyncInterval is the number of frames between audio drift checks.
const resyncInterval = 30

// FrameSink consumes finished frames. *ws.State satisfies it.
type FrameSink interface {
	PublishFrame(fs ws.FrameState, frame *image.RGBA)
}

// Conductor owns the frame loop. Every mutation of engine state happens on
// its goroutine: control commands queue up and are applied between frames,
// so evaluators and the clock never need locks.
type Conductor struct {
	core *Core
	scn  *scene.Scene
	cv   *canvas.Renderer
	diag diagnostics.Sink
	sink FrameSink

	cmds    chan func(*Conductor)
	rec     *capture.Recorder
	offline bool
	frameID uint64
	last    ws.FrameState
}

func newConductor(core *Core, scn *scene.Scene, diag diagnostics.Sink) *Conductor {
	c := &Conductor{
		core: core,
		scn:  scn,
		diag: diag,
		cmds: make(chan func(*Conductor), cmdBuffer),
	}
	c.rebuildCanvas()
	return c
}

// Controls is the queueing control surface handed to the websocket hub.
func (c *Conductor) Controls() ws.Controls {
	return ws.Controls{
		Play:      c.Play,
		Pause:     c.Pause,
		Restart:   c.Restart,
		SetSpeed:  c.SetSpeed,
		SetBPM:    c.SetBPM,
		SetPreset: c.SetPreset,
		Record:    c.SetRecording,
	}
}

func (c *Conductor) Play()                 { c.enqueue(func(c *Conductor) { c.play() }) }
func (c *Conductor) Pause()                { c.enqueue(func(c *Conductor) { c.pause() }) }
func (c *Conductor) Restart()              { c.enqueue(func(c *Conductor) { c.restart() }) }
func (c *Conductor) SetSpeed(v float64)    { c.enqueue(func(c *Conductor) { c.setSpeed(v) }) }
func (c *Conductor) SetBPM(v float64)      { c.enqueue(func(c *Conductor) { c.setBPM(v) }) }
func (c *Conductor) SetPreset(name string) { c.enqueue(func(c *Conductor) { c.setPreset(name) }) }
func (c *Conductor) SetRecording(on bool)  { c.enqueue(func(c *Conductor) { c.setRecording(on) }) }

func (c *Conductor) enqueue(fn func(*Conductor)) {
	select {
	case c.cmds <- fn:
	default:
		log.Warn().Msg("control queue full, command dropped")
	}
}

// Run drives the loop at the configured rate until ctx is cancelled. An
// active recording is finalized on the way out so the artifact stays valid.
func (c *Conductor) Run(ctx context.Context) {
	fps := c.core.Cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			c.core.Clock.Pause()
			c.finishRecording(true)
			return
		case now := <-ticker.C:
			c.step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Export renders the whole clip offline at the capture rate, blocking until
// the artifact is finalized. It must run before the live loop starts. The
// scene seed drives both the skyline and the shake jitter, so repeated
// exports of the same scene are bit-identical.
func (c *Conductor) Export(ctx context.Context) (string, error) {
	core := c.core

	rec := capture.NewRecorder(core.Cfg.Capture.Dir, c.diag)
	if err := rec.Start(core.Cfg.Capture.Width, core.Cfg.Capture.Height); err != nil {
		return "", err
	}
	c.rec = rec
	c.offline = true
	defer func() {
		c.rec = nil
		c.offline = false
		c.rebuildCanvas()
	}()

	// Fresh deterministic run from t=0.
	core.Tempo.Apply(c.scn)
	core.Camera.ApplyScene(c.scn)
	core.FX.Reset()
	core.Clock.Restart()
	core.Clock.StartRecording()
	c.rebuildCanvas()

	for {
		select {
		case <-ctx.Done():
			_, _ = rec.Finish()
			return "", ctx.Err()
		default:
		}
		if c.step(0) == clock.EventRecordingDone {
			break
		}
	}
	return rec.Finish()
}

// step advances exactly one frame. A panic anywhere inside the frame is
// caught and reported; clients keep the previous frame until the next tick.
func (c *Conductor) step(dt float64) (ev clock.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Uint64("frame", c.frameID).Msg("frame recovered")
			c.emit(diagnostics.Diagnostic{
				Severity: diagnostics.Err,
				Code:     diagnostics.CodeFrameRecovered,
				Summary:  "frame loop recovered from a panic",
				Detail:   fmt.Sprint(r),
				Evidence: map[string]any{"frame": c.frameID, "t": c.last.T},
			})
			ev = clock.EventNone
		}
	}()

	c.drainCommands()

	core := c.core
	ev = core.Clock.Tick(dt)
	switch ev {
	case clock.EventLooped:
		if core.Element != nil {
			core.Element.Seek(core.Clock.Now())
		}
	case clock.EventRecordingDone:
		if core.Element != nil {
			core.Element.Pause()
		}
	}

	t := core.Clock.Now()
	if core.Analyser != nil {
		core.Analyser.SetTime(t)
	}
	core.Tempo.Update(t)
	ts := core.Tempo.Snapshot()

	pose, easedT := core.Camera.Evaluate(c.scn, t, ts)
	idx, shot := core.Camera.Current()
	params := core.FX.Evaluate(shot, easedT, t, ts)
	fx.Apply(core.Composer, params, core.Tier)
	core.Rig.SetPose(pose)

	frame := c.cv.Render(pose, params, t)

	// The done event fires on the tick that lands exactly on the clip end;
	// that frame still belongs to the artifact.
	if c.rec != nil && (core.Clock.Snapshot().Recording || ev == clock.EventRecordingDone) {
		if c.offline {
			c.rec.Write(frame)
		} else {
			c.rec.Push(frame)
		}
	}
	if ev == clock.EventRecordingDone && !c.offline {
		c.finishRecording(false)
	}

	c.frameID++
	fs := ws.FrameState{
		T:          t,
		FrameID:    c.frameID,
		SceneTitle: c.scn.Meta.Title,
		ShotIndex:  idx,
		ShotName:   shot.Name,
		Pose:       pose,
		FX:         params,
		Tempo:      ts,
		Playback:   core.Clock.Snapshot(),
		Tier:       core.Tier.String(),
	}
	c.last = fs
	if c.sink != nil {
		c.sink.PublishFrame(fs, frame)
	}

	if core.Element != nil && core.Clock.Snapshot().Playing && c.frameID%resyncInterval == 0 {
		if snapped, drift := core.Clock.Resync(core.Element); snapped {
			log.Debug().Float64("drift", drift).Msg("audio resynced")
			c.emit(diagnostics.Diagnostic{
				Severity: diagnostics.Info,
				Code:     diagnostics.CodeAudioResync,
				Summary:  "audio element snapped back to the playback clock",
				Evidence: map[string]any{"drift_s": drift, "t": t},
			})
		}
	}
	return ev
}

func (c *Conductor) drainCommands() {
	for {
		select {
		case fn := <-c.cmds:
			fn(c)
		default:
			return
		}
	}
}

func (c *Conductor) play() {
	c.core.Clock.Start()
	if c.core.Element != nil {
		c.core.Element.Play()
	}
}

func (c *Conductor) pause() {
	c.finishRecording(false)
	c.core.Clock.Pause()
	if c.core.Element != nil {
		c.core.Element.Pause()
	}
}

func (c *Conductor) restart() {
	c.core.Clock.Restart()
	if c.core.Element != nil {
		c.core.Element.Seek(0)
	}
}

func (c *Conductor) setSpeed(v float64) {
	applied := c.core.Clock.SetSpeed(v)
	if c.core.Element != nil {
		c.core.Element.SetRate(applied)
	}
	log.Debug().Float64("speed", applied).Msg("speed changed")
}

// setBPM retimes the current scene in place. Shots are shared between the
// old and new scene values, so camera curves survive the swap untouched.
func (c *Conductor) setBPM(v float64) {
	c.scn = c.scn.WithBPM(v)
	c.core.Tempo.Apply(c.scn)
	log.Info().Float64("bpm", c.scn.Meta.BPM).Msg("tempo changed")
	c.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.CodeTempoRetimed,
		Summary:  fmt.Sprintf("beat grid relaid at %.1f BPM", c.scn.Meta.BPM),
		Evidence: map[string]any{"bpm": c.scn.Meta.BPM},
	})
}

func (c *Conductor) setPreset(name string) {
	s, err := source.ResolvePreset(name)
	if err != nil {
		log.Warn().Err(err).Str("preset", name).Msg("preset ignored")
		return
	}
	c.applyScene(s, name)
}

// applyScene swaps the clip wholesale: tempo grid, camera curves, effect
// state and the render seed all rebuild, and time rewinds to zero.
func (c *Conductor) applyScene(s *scene.Scene, preset string) {
	c.scn = s
	core := c.core
	core.Tempo.Apply(s)
	core.Camera.ApplyScene(s)
	core.FX.Reset()
	core.Clock.SetDuration(s.Duration())
	core.Clock.Restart()
	if core.Element != nil {
		core.Element.Seek(0)
	}
	c.rebuildCanvas()
	log.Info().Str("scene", s.Meta.Title).Str("preset", preset).Msg("scene applied")
	c.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.CodeSceneApplied,
		Summary:  fmt.Sprintf("scene %q applied", s.Meta.Title),
		Evidence: map[string]any{"title": s.Meta.Title, "preset": preset, "bpm": s.Meta.BPM},
	})
}

func (c *Conductor) setRecording(on bool) {
	if on == (c.rec != nil) {
		return
	}
	if !on {
		c.core.Clock.StopRecording()
		c.finishRecording(false)
		return
	}

	rec := capture.NewRecorder(c.core.Cfg.Capture.Dir, c.diag)
	if err := rec.Start(c.core.Cfg.Capture.Width, c.core.Cfg.Capture.Height); err != nil {
		log.Error().Err(err).Msg("capture start failed")
		return
	}
	c.rec = rec
	c.core.Clock.StartRecording()
	if c.core.Element != nil {
		c.core.Element.Play()
	}
	c.rebuildCanvas()
}

// finishRecording detaches the recorder and finalizes it: inline when wait
// is set (shutdown), on a goroutine otherwise so a slow encoder drain never
// stalls the frame loop. No-op when nothing is recording.
func (c *Conductor) finishRecording(wait bool) {
	rec := c.rec
	if rec == nil {
		return
	}
	c.rec = nil
	c.rebuildCanvas()

	fin := func() {
		if path, err := rec.Finish(); err != nil {
			log.Error().Err(err).Msg("capture finalize failed")
		} else {
			log.Info().Str("artifact", path).Msg("capture finished")
		}
	}
	if wait {
		fin()
	} else {
		go fin()
	}
}

// rebuildCanvas sizes the renderer for its consumer: capture resolution
// while a recorder is attached, preview resolution otherwise. The scene seed
// keeps the skyline identical across rebuilds.
func (c *Conductor) rebuildCanvas() {
	cfg := c.core.Cfg
	w, h := cfg.Preview.Width, cfg.Preview.Height
	if c.rec != nil {
		w, h = cfg.Capture.Width, cfg.Capture.Height
	}
	c.cv = canvas.NewRenderer(w, h, c.scn.Meta.Seed)
}

func (c *Conductor) emit(d diagnostics.Diagnostic) {
	if c.diag != nil {
		c.diag(d)
	}
}
