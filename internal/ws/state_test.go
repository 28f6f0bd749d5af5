package ws

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/clock"
)

type controlLog struct {
	plays, pauses, restarts int
	speeds, bpms            []float64
	presets                 []string
	records                 []bool
}

func (c *controlLog) controls() Controls {
	return Controls{
		Play:      func() { c.plays++ },
		Pause:     func() { c.pauses++ },
		Restart:   func() { c.restarts++ },
		SetSpeed:  func(v float64) { c.speeds = append(c.speeds, v) },
		SetBPM:    func(v float64) { c.bpms = append(c.bpms, v) },
		SetPreset: func(n string) { c.presets = append(c.presets, n) },
		Record:    func(on bool) { c.records = append(c.records, on) },
	}
}

func testFrame() FrameState {
	return FrameState{
		T:          1.5,
		FrameID:    7,
		SceneTitle: "Neon Run",
		ShotIndex:  2,
		ShotName:   "neon alley",
		Tier:       "full",
		Playback:   clock.PlaybackState{Playing: true, Speed: 1},
	}
}

func TestApplyControlRoutesEveryCommand(t *testing.T) {
	rec := &controlLog{}
	s := NewState(rec.controls(), nil, 0, 0)

	s.applyControl(map[string]any{"play": true})
	s.applyControl(map[string]any{"pause": true})
	s.applyControl(map[string]any{"restart": true})
	s.applyControl(map[string]any{"speed": 1.5})
	s.applyControl(map[string]any{"bpm": 128.0})
	s.applyControl(map[string]any{"preset": "harbor-dusk"})
	s.applyControl(map[string]any{"record": true})
	s.applyControl(map[string]any{"record": false})

	assert.Equal(t, 1, rec.plays)
	assert.Equal(t, 1, rec.pauses)
	assert.Equal(t, 1, rec.restarts)
	assert.Equal(t, []float64{1.5}, rec.speeds)
	assert.Equal(t, []float64{128.0}, rec.bpms)
	assert.Equal(t, []string{"harbor-dusk"}, rec.presets)
	assert.Equal(t, []bool{true, false}, rec.records)
}

func TestApplyControlIgnoresJunk(t *testing.T) {
	rec := &controlLog{}
	s := NewState(rec.controls(), nil, 0, 0)

	s.applyControl(map[string]any{
		"play":    "yes",
		"pause":   false,
		"speed":   "fast",
		"bpm":     nil,
		"preset":  12.0,
		"unknown": true,
	})

	assert.Zero(t, rec.plays)
	assert.Zero(t, rec.pauses)
	assert.Empty(t, rec.speeds)
	assert.Empty(t, rec.bpms)
	assert.Empty(t, rec.presets)
}

func TestApplyControlSurvivesNilCallbacks(t *testing.T) {
	s := NewState(Controls{}, nil, 0, 0)
	s.applyControl(map[string]any{"play": true, "speed": 2.0, "record": true})
}

func TestHandleHealth(t *testing.T) {
	s := NewState(Controls{}, []string{"neon-run"}, 0, 0)
	s.PublishFrame(testFrame(), nil)

	rr := httptest.NewRecorder()
	s.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["frame_id"])
	assert.Equal(t, true, resp["playing"])
	assert.Equal(t, "neon alley", resp["shot"])
	assert.Equal(t, "full", resp["tier"])
	assert.GreaterOrEqual(t, resp["uptime_s"], 0.0)
}

func TestPublishFrameWithoutClients(t *testing.T) {
	s := NewState(Controls{}, nil, 0, 0)
	s.PublishFrame(testFrame(), nil)
	s.PublishFrame(testFrame(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
}

func TestDownscaleFitsPreviewBox(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 640, 360))
	pv := downscale(big, 320, 180)
	require.NotNil(t, pv)
	assert.Equal(t, 320, pv.W)
	assert.Equal(t, 180, pv.H)
	assert.Len(t, pv.RGB, 320*180*3)

	small := image.NewRGBA(image.Rect(0, 0, 64, 36))
	pv = downscale(small, 320, 180)
	require.NotNil(t, pv)
	assert.Equal(t, 64, pv.W)
	assert.Len(t, pv.RGB, 64*36*3)
}

func TestRGBBytesHonorsSubimageBounds(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			off := base.PixOffset(x, y)
			base.Pix[off] = uint8(10*y + x)
			base.Pix[off+3] = 0xff
		}
	}
	sub := base.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	pv := rgbBytes(sub)
	assert.Equal(t, 2, pv.W)
	assert.Equal(t, 2, pv.H)
	require.Len(t, pv.RGB, 12)
	assert.Equal(t, uint8(11), pv.RGB[0])
	assert.Equal(t, uint8(12), pv.RGB[3])
	assert.Equal(t, uint8(21), pv.RGB[6])
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestFramesSocketStreamsFrames(t *testing.T) {
	s := NewState(Controls{}, []string{"neon-run", "harbor-dusk"}, 320, 180)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleFramesWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, ""), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello helloMsg
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, []string{"neon-run", "harbor-dusk"}, hello.Presets)

	s.PublishFrame(testFrame(), image.NewRGBA(image.Rect(0, 0, 64, 36)))

	var frame frameMsg
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "frame", frame.Type)
	assert.Equal(t, uint64(7), frame.State.FrameID)
	require.NotNil(t, frame.Preview)
	assert.Equal(t, 64, frame.Preview.W)
}

func TestControlSocketAppliesAndAcks(t *testing.T) {
	speeds := make(chan float64, 1)
	s := NewState(Controls{SetSpeed: func(v float64) { speeds <- v }}, nil, 0, 0)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleControlWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, ""), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]any{"speed": 1.75}))

	select {
	case v := <-speeds:
		assert.Equal(t, 1.75, v)
	case <-time.After(2 * time.Second):
		t.Fatal("control command never reached the callback")
	}

	var ack helloMsg
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "hello", ack.Type)
}
