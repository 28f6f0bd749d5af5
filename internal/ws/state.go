// Package ws serves the live preview and control surface: frame state (and
// an optional pixel preview) streams out over one socket, transport commands
// come back over another, and diagnostics get their own feed. The engine
// stays single-writer: handlers never touch playback state directly, they
// only invoke the conductor's callbacks.
package ws

import (
	"encoding/json"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	xdraw "golang.org/x/image/draw"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/tempo"
)

const writeDeadline = 200 * time.Millisecond

// FrameState is the complete numeric state of one frame, published to every
// frames client and mirrored into /healthz.
type FrameState struct {
	T          float64             `json:"t"`
	FrameID    uint64              `json:"frameId"`
	SceneTitle string              `json:"sceneTitle"`
	ShotIndex  int                 `json:"shotIndex"`
	ShotName   string              `json:"shotName"`
	Pose       camera.Pose         `json:"pose"`
	FX         fx.Params           `json:"fx"`
	Tempo      tempo.State         `json:"tempo"`
	Playback   clock.PlaybackState `json:"playback"`
	Tier       string              `json:"tier"`
}

// PreviewFrame is a downscaled RGB24 dump of the canvas frame. JSON encodes
// the bytes as base64.
type PreviewFrame struct {
	W   int    `json:"w"`
	H   int    `json:"h"`
	RGB []byte `json:"rgb"`
}

type frameMsg struct {
	Type    string        `json:"type"`
	WallT   int64         `json:"wallT"`
	State   FrameState    `json:"state"`
	Preview *PreviewFrame `json:"preview,omitempty"`
}

type helloMsg struct {
	Type    string     `json:"type"`
	Presets []string   `json:"presets"`
	State   FrameState `json:"state"`
}

// Controls routes control-socket commands to the conductor. Nil entries are
// ignored; implementations queue commands rather than acting inline.
type Controls struct {
	Play      func()
	Pause     func()
	Restart   func()
	SetSpeed  func(v float64)
	SetBPM    func(v float64)
	SetPreset func(name string)
	Record    func(on bool)
}

type State struct {
	mu       sync.RWMutex
	controls Controls
	presets  []string

	previewW, previewH int

	frame       FrameState
	startTime   time.Time
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
}

func NewState(controls Controls, presets []string, previewW, previewH int) *State {
	if previewW <= 0 || previewH <= 0 {
		previewW, previewH = 320, 180
	}
	return &State{
		controls:    controls,
		presets:     presets,
		previewW:    previewW,
		previewH:    previewH,
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
	}
}

// PublishFrame stores the latest state and broadcasts it to frames clients.
// frame may be nil when no pixel preview exists for this tier.
func (s *State) PublishFrame(fs FrameState, frame *image.RGBA) {
	s.mu.Lock()
	s.frame = fs
	n := len(s.clients)
	s.mu.Unlock()
	if n == 0 {
		return
	}

	var pv *PreviewFrame
	if frame != nil {
		pv = downscale(frame, s.previewW, s.previewH)
	}
	b, _ := json.Marshal(frameMsg{Type: "frame", WallT: time.Now().UnixNano(), State: fs, Preview: pv})

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

// PushDiag broadcasts a diagnostic to diag clients. Safe from any goroutine:
// the exclusive lock keeps concurrent emitters from interleaving writes on
// one socket.
func (s *State) PushDiag(d diagnostics.Diagnostic) {
	b, _ := json.Marshal(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	s.sendHello(conn)

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.diagClients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.diagClients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.applyControl(msg)
		s.sendHello(conn)
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	fs := s.frame
	nClients := len(s.clients)
	s.mu.RUnlock()

	resp := map[string]any{
		"uptime_s":  time.Since(s.startTime).Seconds(),
		"frame_id":  fs.FrameID,
		"sim_t":     fs.T,
		"playing":   fs.Playback.Playing,
		"recording": fs.Playback.Recording,
		"shot":      fs.ShotName,
		"tier":      fs.Tier,
		"clients":   nClients,
	}
	if n, err := cpu.Counts(true); err == nil {
		resp["cpu_count"] = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["mem_used_pct"] = vm.UsedPercent
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// applyControl maps a control message onto conductor callbacks. Unknown keys
// and wrongly-typed values are ignored.
func (s *State) applyControl(msg map[string]any) {
	c := s.controls
	if v, ok := msg["play"].(bool); ok && v && c.Play != nil {
		c.Play()
	}
	if v, ok := msg["pause"].(bool); ok && v && c.Pause != nil {
		c.Pause()
	}
	if v, ok := msg["restart"].(bool); ok && v && c.Restart != nil {
		c.Restart()
	}
	if v, ok := msg["speed"].(float64); ok && c.SetSpeed != nil {
		c.SetSpeed(v)
	}
	if v, ok := msg["bpm"].(float64); ok && c.SetBPM != nil {
		c.SetBPM(v)
	}
	if v, ok := msg["preset"].(string); ok && c.SetPreset != nil {
		c.SetPreset(v)
	}
	if v, ok := msg["record"].(bool); ok && c.Record != nil {
		c.Record(v)
	}
}

// sendHello holds the exclusive lock across the write: the conn may already
// be in the broadcast set, and the frame publisher broadcasts under the read
// lock, so exclusion here is what keeps the two writers apart.
func (s *State) sendHello(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := helloMsg{Type: "hello", Presets: s.presets, State: s.frame}
	b, _ := json.Marshal(msg)
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// downscale fits the frame into the preview box and strips it to RGB24.
// Frames already inside the box pass through unscaled.
func downscale(src *image.RGBA, w, h int) *PreviewFrame {
	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return nil
	}
	if sb.Dx() <= w && sb.Dy() <= h {
		return rgbBytes(src)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
	return rgbBytes(dst)
}

func rgbBytes(img *image.RGBA) *PreviewFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			out = append(out, img.Pix[off], img.Pix[off+1], img.Pix[off+2])
		}
	}
	return &PreviewFrame{W: w, H: h, RGB: out}
}
