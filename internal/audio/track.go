// Package audio decodes the soundtrack, feeds the tempo engine a live
// spectrum, and models the platform media element the playback clock resyncs
// against. Everything here is optional at runtime: with no track configured
// the engine runs on synthetic energy alone.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"
)

// Track is a fully decoded soundtrack, mixed down to mono float64 in [-1,1].
// Tracks are decoded once at startup; a three-minute clip is small enough to
// hold uncompressed.
type Track struct {
	Path       string
	SampleRate int

	samples []float64
}

func (t *Track) Duration() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(len(t.samples)) / float64(t.SampleRate)
}

func (t *Track) Frames() int { return len(t.samples) }

// LoadTrack decodes an .mp3 or .wav file.
func LoadTrack(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tr *Track
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		tr, err = decodeMP3(path, f)
	case ".wav":
		tr, err = decodeWAV(path, f)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("path", path).
		Int("sampleRate", tr.SampleRate).
		Int("frames", tr.Frames()).
		Float64("seconds", tr.Duration()).
		Msg("decoded track")
	return tr, nil
}

// decodeMP3 reads the decoder's signed 16-bit little-endian stereo stream.
func decodeMP3(path string, f *os.File) (*Track, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	var mono []float64
	if n := dec.Length(); n > 0 {
		mono = make([]float64, 0, n/4)
	}
	var frame [4]byte
	for {
		_, err := io.ReadFull(dec, frame[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		l := int16(binary.LittleEndian.Uint16(frame[0:2]))
		r := int16(binary.LittleEndian.Uint16(frame[2:4]))
		mono = append(mono, (float64(l)+float64(r))/2/32768)
	}
	if len(mono) == 0 {
		return nil, fmt.Errorf("no audio frames in %s", path)
	}
	return &Track{Path: path, SampleRate: dec.SampleRate(), samples: mono}, nil
}

func decodeWAV(path string, f *os.File) (*Track, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("unknown bit depth in %s", path)
	}
	format := dec.Format()
	if format == nil || format.NumChannels < 1 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("unusable wav format in %s", path)
	}

	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(dec.PCMLen()) / bytesPerSample
	buf := &gaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	if _, err := dec.PCMBuffer(buf); err != nil {
		return nil, err
	}

	nch := format.NumChannels
	nframes := nsamples / nch
	if nframes == 0 {
		return nil, fmt.Errorf("no audio frames in %s", path)
	}
	factor := math.Pow(2, float64(bitDepth-1))
	mono := make([]float64, nframes)
	for i := 0; i < nframes; i++ {
		var acc float64
		for c := 0; c < nch; c++ {
			acc += float64(buf.Data[i*nch+c])
		}
		mono[i] = acc / float64(nch) / factor
	}
	return &Track{Path: path, SampleRate: format.SampleRate, samples: mono}, nil
}
