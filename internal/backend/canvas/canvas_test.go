package canvas

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
)

func testPose() camera.Pose {
	return camera.Pose{
		Position: mgl64.Vec3{4, 6, 2},
		LookAt:   mgl64.Vec3{10, 5, -8},
		FOV:      62,
		Roll:     3,
	}
}

func testParams() fx.Params {
	return fx.Params{
		Bloom:    0.22,
		Vignette: 0.3,
		Grain:    0.15,
		Sparkle:  0.2,
		Exposure: 1,
		Fog:      0.3,
		Pulse:    0.5,
		Accent:   0.2,
	}
}

func brightness(pix []uint8) int {
	var sum int
	for i := 0; i < len(pix); i += 4 {
		sum += int(pix[i]) + int(pix[i+1]) + int(pix[i+2])
	}
	return sum
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewRenderer(64, 36, 42)
	a := r.Render(testPose(), testParams(), 3.17)
	b := r.Render(testPose(), testParams(), 3.17)
	assert.True(t, bytes.Equal(a.Pix, b.Pix))
}

func TestSeedChangesSkyline(t *testing.T) {
	a := NewRenderer(64, 36, 1).Render(testPose(), testParams(), 2)
	b := NewRenderer(64, 36, 2).Render(testPose(), testParams(), 2)
	assert.False(t, bytes.Equal(a.Pix, b.Pix))
}

func TestFrameIsOpaque(t *testing.T) {
	img := NewRenderer(32, 18, 7).Render(testPose(), testParams(), 0)
	for i := 3; i < len(img.Pix); i += 4 {
		require.Equal(t, uint8(0xff), img.Pix[i])
	}
}

func TestVignetteDarkensFrame(t *testing.T) {
	p := testParams()
	p.Grain = 0
	open := p
	open.Vignette = 0
	closed := p
	closed.Vignette = 1

	r := NewRenderer(64, 36, 42)
	a := r.Render(testPose(), open, 2)
	b := r.Render(testPose(), closed, 2)
	assert.Greater(t, brightness(a.Pix), brightness(b.Pix))

	// The center pixel sits at radius zero and must be untouched.
	cx, cy := 32, 18
	oa := a.PixOffset(cx, cy)
	ob := b.PixOffset(cx, cy)
	assert.Equal(t, a.Pix[oa:oa+3], b.Pix[ob:ob+3])
}

func TestPulseLightsWindows(t *testing.T) {
	dark := testParams()
	dark.Pulse = 0
	dark.Bloom = 0
	dark.Grain = 0
	dark.Accent = 0
	lit := dark
	lit.Pulse = 1
	lit.Bloom = 1

	r := NewRenderer(64, 36, 42)
	a := r.Render(testPose(), dark, 2)
	b := r.Render(testPose(), lit, 2)
	assert.Greater(t, brightness(b.Pix), brightness(a.Pix))
}

func TestGrainAnimatesOverTime(t *testing.T) {
	r := NewRenderer(64, 36, 42)
	a := r.Render(testPose(), testParams(), 1.00)
	b := r.Render(testPose(), testParams(), 1.10)
	assert.False(t, bytes.Equal(a.Pix, b.Pix))
}

func TestSizeFallsBackToDefault(t *testing.T) {
	r := NewRenderer(0, -5, 1)
	w, h := r.Size()
	assert.Equal(t, DefaultWidth, w)
	assert.Equal(t, DefaultHeight, h)
	img := r.Render(testPose(), testParams(), 0)
	assert.Equal(t, DefaultWidth, img.Rect.Dx())
	assert.Equal(t, DefaultHeight, img.Rect.Dy())
}
