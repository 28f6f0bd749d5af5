package audio

import (
	"math"
	"sync"
	"time"
)

// Sink receives transport calls mirrored from the element. Implemented by
// Speaker; absent in headless runs.
type Sink interface {
	Play()
	Pause()
	Seek(t float64)
}

// Element models a platform media element: once playing it advances on its
// own monotonic clock rather than being stepped frame by frame. The playback
// clock treats it as free-running and periodically snaps it back when drift
// crosses the resync threshold.
type Element struct {
	mu      sync.Mutex
	dur     float64
	rate    float64
	base    float64
	mark    time.Time
	playing bool
	sink    Sink

	now func() time.Time
}

func NewElement(duration float64) *Element {
	if duration <= 0 {
		duration = 1
	}
	return &Element{dur: duration, rate: 1, now: time.Now}
}

// AttachSink mirrors subsequent transport calls to s.
func (e *Element) AttachSink(s Sink) {
	e.mu.Lock()
	e.sink = s
	e.mu.Unlock()
}

func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dur
}

func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Element) Play() {
	e.mu.Lock()
	if !e.playing {
		e.playing = true
		e.mark = e.now()
	}
	s := e.sink
	e.mu.Unlock()
	if s != nil {
		s.Play()
	}
}

func (e *Element) Pause() {
	e.mu.Lock()
	if e.playing {
		e.base = e.position(e.now())
		e.playing = false
	}
	s := e.sink
	e.mu.Unlock()
	if s != nil {
		s.Pause()
	}
}

func (e *Element) Seek(t float64) {
	e.mu.Lock()
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if e.dur > 0 {
		t = math.Mod(t, e.dur)
	}
	e.base = t
	e.mark = e.now()
	s := e.sink
	e.mu.Unlock()
	if s != nil {
		s.Seek(t)
	}
}

// SetRate changes the element clock rate. The speaker keeps playing at unit
// rate; the periodic resync drags it along.
func (e *Element) SetRate(r float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.IsNaN(r) || r <= 0 {
		return
	}
	now := e.now()
	if e.playing {
		e.base = e.position(now)
		e.mark = now
	}
	e.rate = r
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position(e.now())
}

// position requires e.mu held.
func (e *Element) position(now time.Time) float64 {
	t := e.base
	if e.playing {
		t += now.Sub(e.mark).Seconds() * e.rate
	}
	if e.dur > 0 {
		t = math.Mod(t, e.dur)
	}
	return t
}
