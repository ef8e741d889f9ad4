package detection

import (
	"image"
	"math"
	"sort"
)

// Moments are the raw spatial moments of a region.
type Moments struct {
	M00 float64 `json:"m00"`
	M10 float64 `json:"m10"`
	M01 float64 `json:"m01"`
}

// Centroid returns (m10/m00, m01/m00). ok is false when m00 is zero.
func (m Moments) Centroid() (cx, cy float64, ok bool) {
	if m.M00 == 0 {
		return 0, 0, false
	}
	return m.M10 / m.M00, m.M01 / m.M00, true
}

// PointF is a point with sub-pixel coordinates.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OrientedRect is a rotated rectangle. Angle is in degrees, in (-45, 45], and
// measured from the x axis towards the y axis (clockwise on screen since y grows
// downward). Width lies along Angle, Height perpendicular to it.
type OrientedRect struct {
	Center PointF  `json:"center"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Angle  float64 `json:"angle"`
}

// NormalizeTilt folds an angle into (-45, 45] by quarter turns, swapping width
// and height on each turn so the rectangle stays the same.
func NormalizeTilt(angle, width, height float64) (float64, float64, float64) {
	for angle <= -45 {
		angle += 90
		width, height = height, width
	}
	for angle > 45 {
		angle -= 90
		width, height = height, width
	}
	return angle, width, height
}

// MinAreaRect returns the smallest-area rectangle enclosing points, found by
// testing every convex hull edge as a rectangle side.
func MinAreaRect(points []image.Point) OrientedRect {
	hull := convexHull(points)

	switch len(hull) {
	case 0:
		return OrientedRect{}
	case 1:
		return OrientedRect{Center: PointF{float64(hull[0].X), float64(hull[0].Y)}}
	}

	best := OrientedRect{}
	bestArea := math.Inf(1)

	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		ex, ey := float64(b.X-a.X), float64(b.Y-a.Y)
		length := math.Hypot(ex, ey)
		if length == 0 {
			continue
		}
		ux, uy := ex/length, ey/length // edge direction
		vx, vy := -uy, ux              // edge normal

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			px, py := float64(p.X), float64(p.Y)
			pu := px*ux + py*uy
			pv := px*vx + py*vy
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}

		w, h := maxU-minU, maxV-minV
		area := w * h
		if area >= bestArea {
			continue
		}
		bestArea = area

		mu, mv := (minU+maxU)/2, (minV+maxV)/2
		best = OrientedRect{
			Center: PointF{X: mu*ux + mv*vx, Y: mu*uy + mv*vy},
			Width:  w,
			Height: h,
			Angle:  math.Atan2(uy, ux) * 180 / math.Pi,
		}
	}

	best.Angle, best.Width, best.Height = NormalizeTilt(best.Angle, best.Width, best.Height)
	return best
}

// convexHull returns the convex hull of points in counter-clockwise order
// (Andrew's monotone chain). Collinear points are dropped.
func convexHull(points []image.Point) []image.Point {
	if len(points) < 3 {
		out := make([]image.Point, 0, len(points))
		for _, p := range points {
			if len(out) == 0 || out[len(out)-1] != p {
				out = append(out, p)
			}
		}
		return out
	}

	ps := make([]image.Point, len(points))
	copy(ps, points)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})

	cross := func(o, a, b image.Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	hull := make([]image.Point, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// MassSplitter counts a region's pixels on either side of a column: left of x,
// and at or right of x.
type MassSplitter interface {
	SplitAt(x int) (left, right int)
}

// Shape is the geometry a decider works from. Coordinates are relative to the
// working region.
type Shape struct {
	Area        int
	Box         image.Rectangle
	CX, CY      float64
	HasCentroid bool
	Oriented    OrientedRect
	Mass        MassSplitter
}

// AnalyzeShape computes the decision geometry of a contour. The contour must
// not be released while the shape is in use.
func AnalyzeShape(c *Contour) Shape {
	s := Shape{
		Area:     c.Area,
		Box:      c.Box,
		Oriented: MinAreaRect(c.Points),
		Mass:     c,
	}
	s.CX, s.CY, s.HasCentroid = c.Moments.Centroid()
	return s
}
