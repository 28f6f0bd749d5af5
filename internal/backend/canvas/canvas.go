// Package canvas is the last-resort frame source. When neither the full pass
// chain nor the trimmed base pass can be constructed, frames are composed
// directly in pixel space: a night-sky gradient, a seeded skyline with
// pulse-lit windows, and the post effects (vignette, grain, sparkle, fog)
// applied per pixel. Every frame is a pure function of the pose, the effect
// parameters and the clock, so previews and exports stay reproducible.
package canvas

import (
	"image"
	"math"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
)

// Default frame size. Small on purpose: this path exists to keep the preview
// alive, not to win a beauty contest.
const (
	DefaultWidth  = 320
	DefaultHeight = 180
)

// grainRate quantizes the clock for the grain hash so grain flickers at a
// film-like cadence instead of melting per tick.
const grainRate = 25.0

type rgb struct{ r, g, b float64 }

// Night palette.
var (
	skyTop    = rgb{0.02, 0.03, 0.10}
	skyBottom = rgb{0.16, 0.08, 0.24}
	towerCol  = rgb{0.05, 0.05, 0.09}
	windowCol = rgb{1.00, 0.72, 0.38}
	glowCol   = rgb{0.95, 0.30, 0.62}
)

// Renderer composes frames for one scene seed at a fixed size.
type Renderer struct {
	w, h int
	seed uint64
}

func NewRenderer(w, h int, seed int64) *Renderer {
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	return &Renderer{w: w, h: h, seed: uint64(seed)}
}

func (r *Renderer) Size() (int, int) { return r.w, r.h }

// Render draws one frame. t is the simulation clock in seconds.
func (r *Renderer) Render(pose camera.Pose, p fx.Params, t float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	fw, fh := float64(r.w), float64(r.h)

	dir := pose.LookAt.Sub(pose.Position)
	pitch := math.Atan2(dir.Y(), math.Hypot(dir.X(), dir.Z()))
	rollRad := pose.Roll * math.Pi / 180
	tilt := math.Tan(rollRad)

	// Narrower FOV zooms the skyline, wider spreads it.
	zoom := clampf(60/math.Max(pose.FOV, 1), 0.5, 2)
	parallax := (pose.Position.X()*6 + pose.Position.Z()*2) * zoom

	qt := uint64(math.Floor(t * grainRate))
	cx, cy := fw/2, fh/2

	for y := 0; y < r.h; y++ {
		v := float64(y) / (fh - 1)
		sky := lerpRGB(skyTop, skyBottom, v*v)

		for x := 0; x < r.w; x++ {
			horizon := fh*0.52 + pitch*fh*0.8 + tilt*(float64(x)-cx)
			col := sky

			wx := int(math.Floor(float64(x)*zoom + parallax))
			bIdx := uint64(int64(divFloor(wx, 14)))
			rise := hash01(r.seed, bIdx, 1)
			topY := horizon + (0.06-0.45*rise)*fh

			switch {
			case float64(y) >= topY:
				col = r.towerPixel(sky, p, wx, y, bIdx, topY)
			default:
				// Open sky: sparkle and the occasional fixed star.
				starGate := 0.9985 - p.Sparkle*0.012
				if hash01(r.seed, uint64(int64(wx)), uint64(y), 2) > starGate {
					twinkle := 0.4 + 0.6*hash01(r.seed, uint64(int64(wx)), uint64(y), qt, 3)
					col = addRGB(col, scaleRGB(rgb{1, 1, 1}, twinkle*(0.3+p.Sparkle)))
				}
				// Thin accent glow hugging the horizon.
				d := topY - float64(y)
				if d < fh*0.08 {
					g := (1 - d/(fh*0.08)) * (0.12 + p.Accent*0.5 + p.Bloom*0.25)
					col = addRGB(col, scaleRGB(glowCol, g))
				}
			}

			col = scaleRGB(col, p.Exposure)

			// Radial vignette.
			dx, dy := (float64(x)-cx)/cx, (float64(y)-cy)/cy
			rad := math.Sqrt(dx*dx+dy*dy) / math.Sqrt2
			col = scaleRGB(col, 1-p.Vignette*rad*rad)

			// Signed grain, quantized in time.
			g := (hash01(uint64(x), uint64(y), qt, 4)*2 - 1) * p.Grain * 0.18
			col = addRGB(col, rgb{g, g, g})

			off := img.PixOffset(x, y)
			img.Pix[off+0] = toByte(col.r)
			img.Pix[off+1] = toByte(col.g)
			img.Pix[off+2] = toByte(col.b)
			img.Pix[off+3] = 0xff
		}
	}
	return img
}

// towerPixel shades one skyline pixel: dark facade, fog blend toward the sky,
// and a window grid that lights up with the pulse.
func (r *Renderer) towerPixel(sky rgb, p fx.Params, wx, y int, bIdx uint64, topY float64) rgb {
	col := towerCol

	colInBlock := mod(wx, 14)
	if colInBlock >= 2 && colInBlock <= 11 && colInBlock%3 != 0 && y%5 >= 1 && y%5 <= 3 {
		floorIdx := uint64(y / 5)
		if hash01(r.seed, bIdx, floorIdx, uint64(colInBlock/3), 6) < 0.38 {
			lit := 0.25 + 0.75*clamp01(p.Pulse*0.8+p.Bloom*0.4)
			col = scaleRGB(windowCol, lit)
		}
	}

	// Distant haze eats the silhouette from the top down.
	depth := clamp01((float64(y) - topY) / 40)
	base := lerpRGB(sky, col, 0.35+0.65*depth)
	return lerpRGB(base, sky, clamp01(p.Fog)*0.85)
}

func divFloor(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// hash mixes the inputs through a splitmix64 finalizer. Stateless so the
// renderer never accumulates hidden state between frames.
func hash(vals ...uint64) uint64 {
	x := uint64(0x9e3779b97f4a7c15)
	for _, v := range vals {
		x ^= v + 0x9e3779b97f4a7c15 + (x << 6) + (x >> 2)
	}
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func hash01(vals ...uint64) float64 {
	return float64(hash(vals...)>>11) / float64(uint64(1)<<53)
}

func lerpRGB(a, b rgb, t float64) rgb {
	return rgb{a.r + (b.r-a.r)*t, a.g + (b.g-a.g)*t, a.b + (b.b-a.b)*t}
}

func addRGB(a, b rgb) rgb { return rgb{a.r + b.r, a.g + b.g, a.b + b.b} }

func scaleRGB(a rgb, s float64) rgb { return rgb{a.r * s, a.g * s, a.b * s} }

func toByte(v float64) uint8 { return uint8(clamp01(v) * 255) }

func clamp01(v float64) float64 { return clampf(v, 0, 1) }

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
