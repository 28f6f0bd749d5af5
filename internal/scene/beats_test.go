package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegenerateBeatsLadder(t *testing.T) {
	s := &Scene{Meta: Meta{BPM: 90, DurationSeconds: 18}}
	RegenerateBeats(s)

	require.True(t, s.BeatsSynthesized)
	require.Len(t, s.Beats, 28) // 0 through 27*(60/90) <= 18
	step := 60.0 / 90.0
	assert.Equal(t, 0.0, s.Beats[0])
	for i, b := range s.Beats {
		assert.InDelta(t, float64(i)*step, b, 1e-9, "beat %d", i)
	}
	assert.LessOrEqual(t, s.Beats[len(s.Beats)-1], 18.0+1e-9)
}

func TestRegenerateBeatsExtendsTail(t *testing.T) {
	s := &Scene{
		Meta:  Meta{BPM: 120, DurationSeconds: 4},
		Beats: []float64{0, 0.5, 1.0},
	}
	RegenerateBeats(s)

	require.False(t, s.BeatsSynthesized)
	require.Len(t, s.Beats, 9) // explicit 3 + ladder 1.5..4.0
	assert.InDelta(t, 1.5, s.Beats[3], 1e-9)
	assert.InDelta(t, 4.0, s.Beats[8], 1e-9)
}

func TestRegenerateBeatsFiltersGarbage(t *testing.T) {
	s := &Scene{
		Meta:  Meta{BPM: 60, DurationSeconds: 5},
		Beats: []float64{math.NaN(), -3, 2, 2, 1, math.Inf(1), 99},
	}
	RegenerateBeats(s)

	require.False(t, s.BeatsSynthesized)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, s.Beats)
}

func TestRegenerateBeatsClampsBPM(t *testing.T) {
	s := &Scene{Meta: Meta{BPM: 1000, DurationSeconds: 1}}
	RegenerateBeats(s)
	assert.Equal(t, MaxBPM, s.Meta.BPM)

	s = &Scene{Meta: Meta{BPM: math.NaN(), DurationSeconds: 1}}
	RegenerateBeats(s)
	assert.Equal(t, DefaultBPM, s.Meta.BPM)
}
