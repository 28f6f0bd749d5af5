package diagnostics

type Severity string

const (
	Info  Severity = "info"
	Warn  Severity = "warning"
	Err   Severity = "error"
	Fatal Severity = "fatal"
)

// Runtime status codes emitted over the diagnostics socket. Source and
// backend failures are recoverable: the resolver always lands on some scene
// and some tier. Only INIT.FATAL means the process cannot run.
const (
	CodeSourceFallback  = "SOURCE.FALLBACK"
	CodeSourceResolved  = "SOURCE.RESOLVED"
	CodeBackendDegraded = "BACKEND.DEGRADED"
	CodeInitFatal       = "INIT.FATAL"
	CodeFrameRecovered  = "FRAME.RECOVERED"
	CodeCaptureStart    = "CAPTURE.START"
	CodeCaptureDone     = "CAPTURE.DONE"
	CodeCaptureDropped  = "CAPTURE.DROPPED"
	CodeAudioResync     = "AUDIO.RESYNC"
	CodeSceneApplied    = "SCENE.APPLIED"
	CodeTempoRetimed    = "TEMPO.RETIMED"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Sink receives diagnostics from core components. The app layer fans them
// out to the diagnostics socket and the log.
type Sink func(Diagnostic)
