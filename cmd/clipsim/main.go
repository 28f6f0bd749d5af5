// clipsim drives the flythrough pipeline headless: no backend, no sockets,
// no audio device. Useful for checking what a scene document actually does
// before pointing the server at it.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/source"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/tempo"
)

func main() {
	var scenePath string
	var preset string
	var fps int
	var frames int
	var list bool
	flag.StringVar(&scenePath, "scene", "", "Path to a scene JSON document")
	flag.StringVar(&preset, "preset", "", "Embedded preset name (see -list)")
	flag.IntVar(&fps, "fps", 60, "Simulation frames per second")
	flag.IntVar(&frames, "frames", 0, "Frames to simulate (0 = one full clip)")
	flag.BoolVar(&list, "list", false, "List embedded presets and exit")
	flag.Parse()

	if list {
		for _, p := range source.Presets() {
			fmt.Println(p)
		}
		return
	}

	var s *scene.Scene
	switch {
	case scenePath != "":
		data, err := os.ReadFile(scenePath)
		if err != nil {
			log.Fatalf("read scene: %v", err)
		}
		s = scene.Normalize(data)
	case preset != "":
		var err error
		s, err = source.ResolvePreset(preset)
		if err != nil {
			log.Fatalf("preset: %v", err)
		}
	default:
		s = scene.DefaultScene()
	}

	eng := tempo.NewEngine()
	eng.Apply(s)
	cam := camera.NewEvaluator()
	cam.ApplyScene(s)
	fxe := fx.NewEvaluator()
	clk := clock.New(s.Duration())
	clk.Start()

	if fps <= 0 {
		fps = 60
	}
	if frames <= 0 {
		frames = int(s.Duration() * float64(fps))
	}
	dt := 1.0 / float64(fps)

	fmt.Printf("[scene] %q %.0fs bpm=%.1f shots=%d\n", s.Meta.Title, s.Duration(), s.Meta.BPM, len(s.Shots))

	var pose camera.Pose
	var params fx.Params
	lastShot := -1
	lastBeat := 0
	beats := 0
	minPulse, maxPulse := math.Inf(1), math.Inf(-1)

	for i := 0; i < frames; i++ {
		clk.Tick(dt)
		t := clk.Now()
		eng.Update(t)
		ts := eng.Snapshot()

		var easedT float64
		pose, easedT = cam.Evaluate(s, t, ts)
		idx, shot := cam.Current()
		params = fxe.Evaluate(shot, easedT, t, ts)

		if idx != lastShot {
			fmt.Printf("[shot] t=%6.2fs #%d %q ease=%s\n", t, idx, shot.Name, shot.Camera.Ease)
			lastShot = idx
		}
		if ts.BeatIndex > lastBeat {
			beats += ts.BeatIndex - lastBeat
		}
		lastBeat = ts.BeatIndex
		minPulse = math.Min(minPulse, ts.Pulse)
		maxPulse = math.Max(maxPulse, ts.Pulse)
	}

	fmt.Printf("[done] frames=%d beats=%d pulse=[%.2f..%.2f]\n", frames, beats, minPulse, maxPulse)
	fmt.Printf("[pose] pos=(%.2f %.2f %.2f) fov=%.1f roll=%.2f exposure=%.2f fog=%.2f\n",
		pose.Position.X(), pose.Position.Y(), pose.Position.Z(),
		pose.FOV, pose.Roll, params.Exposure, params.Fog)
}
