// Package capture turns rendered frames into an artifact on disk. The good
// path pipes raw RGBA into an ffmpeg child process; without ffmpeg on PATH it
// degrades to a numbered PNG sequence. Either way the conductor is never
// blocked: live pushes drop the oldest queued frame under pressure, and only
// the offline exporter uses the blocking write.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
)

// queueDepth bounds frames waiting for the encoder. At capture rate this is
// ~2.5 s of slack before drops begin.
const queueDepth = 64

type frameJob struct {
	seq int
	img *image.RGBA
}

// Recorder encodes a fixed-rate frame stream. One recording per Recorder:
// Start, a stream of Push/Write, then Finish.
type Recorder struct {
	outDir string
	diag   diagnostics.Sink

	lookPath func(string) (string, error)

	mu       sync.Mutex
	started  bool
	finished bool
	seq      int
	dropped  int
	written  int
	warned   bool
	frames   chan frameJob
	outPath  string

	g *errgroup.Group

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	ffmpegLog bytes.Buffer
}

func NewRecorder(outDir string, diag diagnostics.Sink) *Recorder {
	if outDir == "" {
		outDir = "."
	}
	return &Recorder{outDir: outDir, diag: diag, lookPath: exec.LookPath}
}

// Start opens the encoding pipeline for w x h frames.
func (r *Recorder) Start(w, h int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("recorder already started")
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("bad frame size %dx%d", w, h)
	}

	stamp := time.Now().Format("20060102T150405")
	r.frames = make(chan frameJob, queueDepth)
	r.g = &errgroup.Group{}

	mode := "ffmpeg"
	if _, err := r.lookPath("ffmpeg"); err == nil {
		if err := r.startFFmpeg(w, h, stamp); err != nil {
			return err
		}
	} else {
		mode = "png"
		if err := r.startPNG(stamp); err != nil {
			return err
		}
	}
	r.started = true

	log.Info().Str("mode", mode).Str("out", r.outPath).Int("w", w).Int("h", h).Msg("capture started")
	r.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.CodeCaptureStart,
		Summary:  "capture started",
		Evidence: map[string]any{"mode": mode, "out": r.outPath, "fps": clock.CaptureFPS},
	})
	return nil
}

func (r *Recorder) startFFmpeg(w, h int, stamp string) error {
	r.outPath = filepath.Join(r.outDir, "drone-night-clip-"+stamp+".mp4")
	cmd := exec.Command("ffmpeg", ffmpegArgs(w, h, r.outPath)...)
	cmd.Stdout = &r.ffmpegLog
	cmd.Stderr = &r.ffmpegLog

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	r.cmd = cmd
	r.stdin = stdin

	frames := r.frames
	r.g.Go(func() error {
		for job := range frames {
			if err := writeRawRGBA(stdin, job.img); err != nil {
				return fmt.Errorf("ffmpeg pipe: %w", err)
			}
			r.countWritten()
		}
		return nil
	})
	return nil
}

func (r *Recorder) startPNG(stamp string) error {
	r.outPath = filepath.Join(r.outDir, "drone-night-clip-"+stamp)
	if err := os.MkdirAll(r.outPath, 0o755); err != nil {
		return err
	}

	frames := r.frames
	dir := r.outPath
	for i := 0; i < pngWorkers(); i++ {
		r.g.Go(func() error {
			for job := range frames {
				name := filepath.Join(dir, fmt.Sprintf("frame-%05d.png", job.seq))
				if err := writePNG(name, job.img); err != nil {
					return err
				}
				r.countWritten()
			}
			return nil
		})
	}
	return nil
}

// Push enqueues a frame without ever blocking. Under pressure the oldest
// queued frame is dropped so the stream stays as current as possible.
func (r *Recorder) Push(img *image.RGBA) {
	r.mu.Lock()
	if !r.started || r.finished {
		r.mu.Unlock()
		return
	}
	job := frameJob{seq: r.seq, img: img}
	r.seq++
	ch := r.frames
	r.mu.Unlock()

	select {
	case ch <- job:
		return
	default:
	}
	select {
	case <-ch:
		r.noteDrop()
	default:
	}
	select {
	case ch <- job:
	default:
		r.noteDrop()
	}
}

// Write enqueues a frame, blocking until the encoder has room. Offline
// exports use this: dropping would desync the frame clock.
func (r *Recorder) Write(img *image.RGBA) {
	r.mu.Lock()
	if !r.started || r.finished {
		r.mu.Unlock()
		return
	}
	job := frameJob{seq: r.seq, img: img}
	r.seq++
	ch := r.frames
	r.mu.Unlock()

	ch <- job
}

// Finish drains the queue, closes the pipeline and returns the artifact path
// (a .mp4 file or a PNG directory).
func (r *Recorder) Finish() (string, error) {
	r.mu.Lock()
	if !r.started || r.finished {
		r.mu.Unlock()
		return "", fmt.Errorf("recorder not running")
	}
	r.finished = true
	close(r.frames)
	r.mu.Unlock()

	err := r.g.Wait()

	if r.stdin != nil {
		if cerr := r.stdin.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if werr := r.cmd.Wait(); err == nil && werr != nil {
			err = fmt.Errorf("ffmpeg: %w: %s", werr, tail(r.ffmpegLog.String(), 400))
		}
	}

	r.mu.Lock()
	written, dropped, out := r.written, r.dropped, r.outPath
	r.mu.Unlock()

	log.Info().Str("out", out).Int("frames", written).Int("dropped", dropped).Err(err).Msg("capture finished")
	r.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.CodeCaptureDone,
		Summary:  "capture finished",
		Evidence: map[string]any{"out": out, "frames": written, "dropped": dropped},
	})
	return out, err
}

// Active reports whether the recorder accepts frames.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.finished
}

func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) countWritten() {
	r.mu.Lock()
	r.written++
	r.mu.Unlock()
}

func (r *Recorder) noteDrop() {
	r.mu.Lock()
	r.dropped++
	first := !r.warned
	r.warned = true
	n := r.dropped
	r.mu.Unlock()

	if first {
		log.Warn().Msg("capture queue full, dropping oldest frames")
		r.emit(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.CodeCaptureDropped,
			Summary:  "capture queue full, dropping frames",
			LikelyCauses: []string{
				"encoder slower than the frame rate",
			},
			SuggestedFixes: []string{
				"record at a smaller frame size",
				"prefer the offline export path for exact captures",
			},
			Evidence: map[string]any{"dropped": n},
		})
	}
}

func (r *Recorder) emit(d diagnostics.Diagnostic) {
	if r.diag != nil {
		r.diag(d)
	}
}

// ffmpegArgs builds the rawvideo-over-stdin invocation.
func ffmpegArgs(w, h int, out string) []string {
	return []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(clock.CaptureFPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "medium",
		out,
	}
}

// writeRawRGBA streams the pixel buffer, re-laying it out first when the
// stride or origin is nonstandard.
func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	if img.Stride != b.Dx()*4 || b.Min.X != 0 || b.Min.Y != 0 {
		tmp := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(tmp, tmp.Bounds(), img, b.Min, draw.Src)
		img = tmp
	}
	_, err := w.Write(img.Pix)
	return err
}

func writePNG(name string, img *image.RGBA) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pngWorkers sizes the encode pool from the logical CPU count, capped so a
// big host does not turn the fallback into an IO storm.
func pngWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = 2
	}
	if n > 4 {
		n = 4
	}
	return n
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
