package camera

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Curve is a centripetal Catmull-Rom spline through a shot's control points.
// Missing neighbors at the ends are reflected so the boundary segments keep a
// usable tangent for the look-ahead sample.
type Curve struct {
	pts []mgl64.Vec3
}

// NewCurve validates the control points and builds the spline. Fewer than two
// points or any non-finite coordinate is an error; callers keep their previous
// curve in that case.
func NewCurve(points []mgl64.Vec3) (*Curve, error) {
	if len(points) < 2 {
		return nil, errors.New("curve needs at least 2 control points")
	}
	for _, p := range points {
		for i := 0; i < 3; i++ {
			if math.IsNaN(p[i]) || math.IsInf(p[i], 0) {
				return nil, errors.New("non-finite control point")
			}
		}
	}
	return &Curve{pts: append([]mgl64.Vec3(nil), points...)}, nil
}

// Point samples the curve at t in [0,1] (clamped). t maps uniformly across
// the segments; every control point lies on the curve at t = k/(n-1).
func (c *Curve) Point(t float64) mgl64.Vec3 {
	segs := len(c.pts) - 1
	p := clamp(t, 0, 1) * float64(segs)
	i := int(math.Floor(p))
	if i >= segs {
		i = segs - 1
	}
	u := p - float64(i)

	return catmullRom(c.neighbor(i-1), c.pts[i], c.pts[i+1], c.neighbor(i+2), u)
}

// neighbor returns the control point at index i, reflecting across the ends
// for the virtual points the boundary segments need.
func (c *Curve) neighbor(i int) mgl64.Vec3 {
	n := len(c.pts)
	switch {
	case i < 0:
		return c.pts[0].Mul(2).Sub(c.pts[1])
	case i >= n:
		return c.pts[n-1].Mul(2).Sub(c.pts[n-2])
	}
	return c.pts[i]
}

// catmullRom interpolates between p1 and p2 with centripetal knot spacing,
// evaluated as a cubic Hermite segment. Degenerate knots (coincident points)
// fall back to unit spacing so the math never divides by zero.
func catmullRom(p0, p1, p2, p3 mgl64.Vec3, u float64) mgl64.Vec3 {
	const knotPow = 0.25 // sqrt of distance, computed from squared length

	dt0 := math.Pow(p0.Sub(p1).LenSqr(), knotPow)
	dt1 := math.Pow(p1.Sub(p2).LenSqr(), knotPow)
	dt2 := math.Pow(p2.Sub(p3).LenSqr(), knotPow)
	if dt1 < 1e-4 {
		dt1 = 1.0
	}
	if dt0 < 1e-4 {
		dt0 = dt1
	}
	if dt2 < 1e-4 {
		dt2 = dt1
	}

	t1 := p1.Sub(p0).Mul(1 / dt0).Sub(p2.Sub(p0).Mul(1 / (dt0 + dt1))).Add(p2.Sub(p1).Mul(1 / dt1)).Mul(dt1)
	t2 := p2.Sub(p1).Mul(1 / dt1).Sub(p3.Sub(p1).Mul(1 / (dt1 + dt2))).Add(p3.Sub(p2).Mul(1 / dt2)).Mul(dt1)

	u2 := u * u
	u3 := u2 * u
	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2

	return p1.Mul(h00).Add(t1.Mul(h10)).Add(p2.Mul(h01)).Add(t2.Mul(h11))
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

func clamp01(x float64) float64 { return clamp(x, 0, 1) }
