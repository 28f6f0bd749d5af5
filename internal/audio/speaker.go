package audio

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	oto "github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog/log"
)

const readyTimeout = 2 * time.Second

// Speaker plays the decoded track through the system audio device. Purely a
// side output: timing authority stays with the element and the playback
// clock, and every engine feature works with no speaker at all.
type Speaker struct {
	ctx   *oto.Context
	ready chan struct{}
	pcm   []byte

	sampleRate int

	mu      sync.Mutex
	player  oto.Player
	pending int
	dead    bool
}

// NewSpeaker prepares an interleaved stereo 16-bit buffer and an audio
// context for the track. The device becomes usable asynchronously; transport
// calls before readiness wait briefly, then give up for the session.
func NewSpeaker(tr *Track) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(tr.SampleRate, 2, 2)
	if err != nil {
		return nil, err
	}
	pcm := make([]byte, len(tr.samples)*4)
	for i, s := range tr.samples {
		v := uint16(int16(clampf(s, -1, 1) * 32767))
		binary.LittleEndian.PutUint16(pcm[i*4:], v)
		binary.LittleEndian.PutUint16(pcm[i*4+2:], v)
	}
	return &Speaker{ctx: ctx, ready: ready, pcm: pcm, sampleRate: tr.SampleRate}, nil
}

func (s *Speaker) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.waitReadyLocked() {
		return
	}
	if s.player == nil {
		s.player = s.ctx.NewPlayer(bytes.NewReader(s.pcm[s.pending:]))
	}
	s.player.Play()
}

func (s *Speaker) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
}

// Seek rebuilds the player at the byte offset for t. Rebuilding is cheaper
// than requiring a seekable player and only happens on resync snaps and loop
// wraps.
func (s *Speaker) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := int(t*float64(s.sampleRate)) * 4
	if off < 0 {
		off = 0
	}
	if off > len(s.pcm) {
		off = len(s.pcm)
	}
	if s.player == nil {
		s.pending = off
		return
	}
	wasPlaying := s.player.IsPlaying()
	_ = s.player.Close()
	s.player = s.ctx.NewPlayer(bytes.NewReader(s.pcm[off:]))
	if wasPlaying {
		s.player.Play()
	}
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// waitReadyLocked blocks until the device is usable or the timeout passes.
// A timeout marks the speaker dead for the rest of the run.
func (s *Speaker) waitReadyLocked() bool {
	if s.dead {
		return false
	}
	select {
	case <-s.ready:
		return true
	case <-time.After(readyTimeout):
		s.dead = true
		log.Warn().Msg("audio device never became ready, playback disabled")
		return false
	}
}
