package clock

import "math"

// CaptureFPS is the fixed export frame rate. While recording, every tick
// advances time by exactly speed/CaptureFPS regardless of how long the real
// frame took, so exports are frame-accurate no matter how slow the renderer.
const CaptureFPS = 25

// Playback speed bounds.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// resyncThreshold is the audio drift, in seconds, past which the element is
// snapped to the simulation clock. Coarse on purpose: a visible stutter every
// few minutes beats per-sample locking complexity.
const resyncThreshold = 0.1

// PlaybackState is the clock's published state. The Clock is its single
// writer; every other component reads a value copy.
type PlaybackState struct {
	CurrentTime float64 `json:"currentTime"`
	Playing     bool    `json:"playing"`
	Recording   bool    `json:"recording"`
	Speed       float64 `json:"speed"`
}

// AudioElement is the platform media element the clock periodically resyncs.
// It runs on its own internal clock; the core never drives it frame by frame.
type AudioElement interface {
	CurrentTime() float64
	Seek(t float64)
}

// Event reports what a Tick did beyond advancing time.
type Event int

const (
	EventNone Event = iota
	// EventLooped: playback reached the clip end and wrapped to the start.
	EventLooped
	// EventRecordingDone: the capture clock reached the clip end; recording
	// and playback both stopped with time clamped to the duration.
	EventRecordingDone
)

// Clock owns PlaybackState and advances it under two regimes: real elapsed
// time scaled by speed while playing, and a fixed per-frame step while
// recording. Recording time is derived from a frame counter rather than
// accumulated, so N ticks land on exactly base + N·speed/fps.
type Clock struct {
	st       PlaybackState
	duration float64

	recBase   float64
	recFrames int64
}

func New(duration float64) *Clock {
	if duration <= 0 {
		duration = 1
	}
	return &Clock{st: PlaybackState{Speed: 1}, duration: duration}
}

// Snapshot returns a value copy of the playback state.
func (c *Clock) Snapshot() PlaybackState { return c.st }

// Now is the current simulation time in seconds.
func (c *Clock) Now() float64 { return c.st.CurrentTime }

func (c *Clock) Duration() float64 { return c.duration }

// SetDuration adopts a new clip length (scene swap). Time past the new end
// clamps back inside.
func (c *Clock) SetDuration(d float64) {
	if d <= 0 {
		return
	}
	c.duration = d
	if c.st.CurrentTime > d {
		c.st.CurrentTime = 0
	}
}

// Start begins (or resumes) real-time playback.
func (c *Clock) Start() { c.st.Playing = true }

// StartRecording switches to the fixed-rate capture clock from the current
// position. Playback runs while recording.
func (c *Clock) StartRecording() {
	c.st.Playing = true
	c.st.Recording = true
	c.recBase = c.st.CurrentTime
	c.recFrames = 0
}

// StopRecording leaves the capture clock and resumes real-time playback from
// the current position. No-op when not recording.
func (c *Clock) StopRecording() {
	c.st.Recording = false
}

// Pause freezes time. An active recording is abandoned; the caller finalizes
// whatever frames were captured.
func (c *Clock) Pause() {
	c.st.Playing = false
	c.st.Recording = false
}

// Restart rewinds to zero without changing the playing/recording flags.
// Downstream rewind detection (tempo beat indices, audio resync) keys off the
// time moving backwards.
func (c *Clock) Restart() {
	c.st.CurrentTime = 0
	c.recBase = 0
	c.recFrames = 0
}

// SetSpeed clamps and applies the playback speed, returning the value in
// effect. While recording, the frame counter is rebased so already-captured
// frames keep their timestamps.
func (c *Clock) SetSpeed(v float64) float64 {
	if math.IsNaN(v) {
		return c.st.Speed
	}
	v = clamp(v, MinSpeed, MaxSpeed)
	if c.st.Recording {
		c.recBase = c.st.CurrentTime
		c.recFrames = 0
	}
	c.st.Speed = v
	return v
}

// Tick advances the clock. frameDelta is the real elapsed time since the
// previous tick; it is ignored while recording, where every tick is worth
// exactly one capture frame.
func (c *Clock) Tick(frameDelta float64) Event {
	if !c.st.Playing {
		return EventNone
	}

	if c.st.Recording {
		c.recFrames++
		c.st.CurrentTime = c.recBase + float64(c.recFrames)*c.st.Speed/CaptureFPS
		if c.st.CurrentTime >= c.duration {
			c.st.CurrentTime = c.duration
			c.st.Recording = false
			c.st.Playing = false
			return EventRecordingDone
		}
		return EventNone
	}

	if frameDelta < 0 || math.IsNaN(frameDelta) {
		frameDelta = 0
	}
	c.st.CurrentTime += frameDelta * c.st.Speed
	if c.st.CurrentTime >= c.duration {
		c.st.CurrentTime = math.Mod(c.st.CurrentTime, c.duration)
		return EventLooped
	}
	return EventNone
}

// Resync compares the element's own clock to the simulation clock and snaps
// the element when the drift exceeds the threshold. Reports whether it
// snapped and the drift it saw.
func (c *Clock) Resync(el AudioElement) (bool, float64) {
	if el == nil || !c.st.Playing {
		return false, 0
	}
	drift := el.CurrentTime() - c.st.CurrentTime
	if math.Abs(drift) <= resyncThreshold {
		return false, drift
	}
	el.Seek(c.st.CurrentTime)
	return true, drift
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
