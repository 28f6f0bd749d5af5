package app

import (
	"context"
	"image"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/audio"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/config"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/ws"
)

type diagRec struct {
	mu sync.Mutex
	ds []diagnostics.Diagnostic
}

func (r *diagRec) sink(d diagnostics.Diagnostic) {
	r.mu.Lock()
	r.ds = append(r.ds, d)
	r.mu.Unlock()
}

func (r *diagRec) has(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.ds {
		if d.Code == code {
			return true
		}
	}
	return false
}

type sinkRec struct {
	frames  []ws.FrameState
	lastImg *image.RGBA
	panics  int
}

func (s *sinkRec) PublishFrame(fs ws.FrameState, frame *image.RGBA) {
	if s.panics > 0 {
		s.panics--
		panic("sink exploded")
	}
	s.frames = append(s.frames, fs)
	s.lastImg = frame
}

// newTestCore boots a core off the embedded preset with tiny frame sizes and
// swaps in recording sinks.
func newTestCore(t *testing.T) (*Core, *diagRec, *sinkRec) {
	t.Helper()
	cfg := config.Default()
	cfg.Preset = "neon-run"
	cfg.Preview = config.Preview{Width: 64, Height: 36}
	cfg.Capture = config.Capture{Dir: t.TempDir(), Width: 64, Height: 36}

	core := InitCore(context.Background(), cfg)
	dr := &diagRec{}
	sr := &sinkRec{}
	core.Cond.diag = dr.sink
	core.Cond.sink = sr
	return core, dr, sr
}

func TestInitCoreBootsWithoutExternals(t *testing.T) {
	core, _, _ := newTestCore(t)
	require.NotNil(t, core.Cond)
	require.NotNil(t, core.State)
	assert.Equal(t, fx.TierFull, core.Tier)
	assert.Equal(t, 60.0, core.Clock.Duration())
	assert.Nil(t, core.Element)
}

func TestConductorProducesFrames(t *testing.T) {
	core, _, sr := newTestCore(t)
	core.Cond.Play()
	for i := 0; i < 5; i++ {
		core.Cond.step(1.0 / 60)
	}

	require.Len(t, sr.frames, 5)
	first, last := sr.frames[0], sr.frames[4]
	assert.Equal(t, uint64(1), first.FrameID)
	assert.Equal(t, uint64(5), last.FrameID)
	assert.Greater(t, last.T, first.T)
	assert.Equal(t, "Neon Run", last.SceneTitle)
	assert.Equal(t, "skyline rush", last.ShotName)
	assert.Equal(t, "full", last.Tier)
	require.NotNil(t, sr.lastImg)
	assert.Equal(t, 64, sr.lastImg.Bounds().Dx())

	// The chain saw the same params the frame reported.
	assert.Equal(t, last.FX.Exposure, core.Composer.Exposure())
}

func TestFramePanicIsRecovered(t *testing.T) {
	core, dr, sr := newTestCore(t)
	core.Cond.Play()
	sr.panics = 1

	require.NotPanics(t, func() { core.Cond.step(1.0 / 60) })
	assert.True(t, dr.has(diagnostics.CodeFrameRecovered))
	assert.Empty(t, sr.frames)

	// The loop keeps going.
	core.Cond.step(1.0 / 60)
	require.Len(t, sr.frames, 1)
	assert.Equal(t, uint64(2), sr.frames[0].FrameID)
}

func TestCommandsApplyBetweenFrames(t *testing.T) {
	core, dr, sr := newTestCore(t)
	core.Cond.Play()
	core.Cond.SetSpeed(1.5)
	core.Cond.SetBPM(140)
	core.Cond.step(1.0 / 60)

	require.Len(t, sr.frames, 1)
	assert.Equal(t, 1.5, sr.frames[0].Playback.Speed)
	assert.Equal(t, 140.0, core.Tempo.Snapshot().BPM)
	assert.True(t, dr.has(diagnostics.CodeTempoRetimed))
}

func TestPresetSwapRestartsClip(t *testing.T) {
	core, dr, sr := newTestCore(t)
	core.Cond.Play()
	for i := 0; i < 10; i++ {
		core.Cond.step(0.5)
	}
	require.Greater(t, sr.frames[len(sr.frames)-1].T, 4.0)

	core.Cond.SetPreset("harbor-dusk")
	core.Cond.step(1.0 / 60)

	last := sr.frames[len(sr.frames)-1]
	assert.Equal(t, "Harbor Dusk", last.SceneTitle)
	assert.Equal(t, "breakwater drift", last.ShotName)
	assert.Less(t, last.T, 0.1)
	assert.Equal(t, 98.0, core.Tempo.Snapshot().BPM)
	assert.True(t, dr.has(diagnostics.CodeSceneApplied))
}

func TestUnknownPresetIgnored(t *testing.T) {
	core, dr, sr := newTestCore(t)
	core.Cond.Play()
	core.Cond.SetPreset("does-not-exist")
	core.Cond.step(1.0 / 60)

	assert.Equal(t, "Neon Run", sr.frames[0].SceneTitle)
	assert.False(t, dr.has(diagnostics.CodeSceneApplied))
}

func TestRecordToggleLifecycle(t *testing.T) {
	t.Setenv("PATH", t.TempDir()) // no ffmpeg: recorder falls back to PNG
	core, dr, sr := newTestCore(t)
	core.Cond.Play()

	core.Cond.SetRecording(true)
	core.Cond.step(0)
	require.True(t, dr.has(diagnostics.CodeCaptureStart))
	assert.True(t, sr.frames[0].Playback.Recording)

	for i := 0; i < 9; i++ {
		core.Cond.step(0)
	}
	core.Cond.SetRecording(false)
	core.Cond.step(1.0 / 60)

	last := sr.frames[len(sr.frames)-1]
	assert.False(t, last.Playback.Recording)
	assert.True(t, last.Playback.Playing, "stopping capture must not pause playback")

	// Finalization runs off the frame loop.
	require.Eventually(t, func() bool { return dr.has(diagnostics.CodeCaptureDone) },
		2*time.Second, 10*time.Millisecond)
}

func TestAudioDriftSnapsElement(t *testing.T) {
	core, dr, _ := newTestCore(t)
	core.Element = audio.NewElement(60)
	core.Element.Seek(25)

	core.Cond.Play()
	for i := 0; i < 30; i++ {
		core.Cond.step(1.0 / 60)
	}

	assert.True(t, dr.has(diagnostics.CodeAudioResync))
	assert.InDelta(t, core.Clock.Now(), core.Element.CurrentTime(), 0.05)
}

func TestExportRendersTheWholeClip(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	core, dr, _ := newTestCore(t)

	path, err := core.Cond.Export(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	entries, err := os.ReadDir(path)
	require.NoError(t, err)
	assert.Len(t, entries, 60*clock.CaptureFPS)

	st := core.Clock.Snapshot()
	assert.False(t, st.Recording)
	assert.False(t, st.Playing)
	assert.Equal(t, 60.0, st.CurrentTime)
	assert.True(t, dr.has(diagnostics.CodeCaptureDone))
}

func TestExportCancelled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	core, _, _ := newTestCore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := core.Cond.Export(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
