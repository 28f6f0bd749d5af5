package tempo

// State is the per-frame rhythm snapshot every evaluator reads. The engine is
// its single writer; consumers get value copies via Engine.Snapshot.
//
// Pulse, Accent, BeatPulse, AudioPulse and Energy are clamped to [0,1] on
// every update; Wave stays in [-1,1].
type State struct {
	BPM          float64 `json:"bpm"`
	BeatDuration float64 `json:"beatDuration"`
	BarDuration  float64 `json:"barDuration"`

	LastBeatTime float64 `json:"lastBeatTime"`
	NextBeatTime float64 `json:"nextBeatTime"`
	BeatIndex    int     `json:"beatIndex"`

	Pulse      float64 `json:"pulse"`
	Accent     float64 `json:"accent"`
	BeatPulse  float64 `json:"beatPulse"`
	AudioPulse float64 `json:"audioPulse"`
	Wave       float64 `json:"wave"`
	Energy     float64 `json:"energy"`

	// LastAudioPeak is the decaying envelope the onset detector compares
	// fresh energy against.
	LastAudioPeak float64 `json:"lastAudioPeak"`
}

// Analyser is the frequency-domain view of whatever audio is playing.
// Spectrum fills dst with per-bin magnitudes in [0,1] and reports how many
// bins it wrote (never more than Bins).
type Analyser interface {
	Bins() int
	Spectrum(dst []float64) int
}
