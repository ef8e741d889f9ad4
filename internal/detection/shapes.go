package detection

import (
	"image"
)

// Contour is the outer boundary of one 8-connected foreground component of a
// mask, together with the geometry of the region it encloses.
//
// All coordinates are relative to the mask (the working region), not the frame.
type Contour struct {
	// Points is the ordered, closed outer boundary traced clockwise starting at
	// the component's top-left pixel. The closing point is not repeated.
	Points []image.Point

	// Box is the axis-aligned bounding box (exclusive max corner).
	Box image.Rectangle

	// Area is the number of pixels enclosed by the contour, holes included.
	Area int

	// Moments are the raw moments of the enclosed region.
	Moments Moments

	// filled is the enclosed region rendered as a Box-sized mask anchored at
	// Box.Min.
	filled *Mask
}

// SplitAt counts enclosed pixels left of column x and at or right of it.
func (c *Contour) SplitAt(x int) (left, right int) {
	if c.filled == nil {
		return 0, 0
	}
	w := c.filled.Width
	for fy := 0; fy < c.filled.Height; fy++ {
		row := c.filled.Pix[fy*w : (fy+1)*w]
		for fx, v := range row {
			if v == 0 {
				continue
			}
			if c.Box.Min.X+fx < x {
				left++
			} else {
				right++
			}
		}
	}
	return left, right
}

// Release returns the contour's filled mask to the pool. Points, Box, Area and
// Moments stay valid.
func (c *Contour) Release() {
	if c == nil {
		return
	}
	c.filled.Release()
	c.filled = nil
}

// ContourSet is the list of contours found in one mask.
type ContourSet []*Contour

// Release releases every contour in the set.
func (s ContourSet) Release() {
	for _, c := range s {
		c.Release()
	}
}

// Largest returns the contour with the greatest area, or nil for an empty set.
// On equal areas the first one found (in raster order of their top-left pixel)
// wins.
func (s ContourSet) Largest() *Contour {
	var best *Contour
	for _, c := range s {
		if best == nil || c.Area > best.Area {
			best = c
		}
	}
	return best
}

// FindContours finds the external contours of all 8-connected foreground
// components in m. Contours nested inside another component's hole are still
// reported as separate components; the enclosing contour's Area already covers
// them. The caller owns the returned set and must Release it.
//
// # Algorithm
//
//  1. Labelling: raster scan, stack-based flood fill (8-connected) assigns a
//     label to each component and records its bounding box
//  2. Tracing: Moore-neighbour tracing from the component's first raster pixel
//     produces the ordered outer boundary
//  3. Filling: inside the bounding box, background reachable from the box border
//     (4-connected) is outside; everything else is enclosed by the contour
//  4. Moments: m00, m10, m01 are accumulated over the enclosed pixels
func FindContours(m *Mask) ContourSet {
	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	var set ContourSet
	var stack []image.Point

	next := int32(0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Pix[y*w+x] == 0 || labels[y*w+x] != 0 {
				continue
			}
			next++
			box := floodFill(m, labels, next, x, y, &stack)
			start := image.Pt(x, y)

			c := &Contour{Box: box}
			c.Points = traceBoundary(labels, w, h, next, start)
			c.filled = fillComponent(labels, w, next, box)
			c.Area, c.Moments = regionMoments(c.filled, box.Min)
			set = append(set, c)
		}
	}
	return set
}

// floodFill labels the 8-connected component containing (startX, startY) and
// returns its bounding box. stack is reused between calls to avoid reallocating.
func floodFill(m *Mask, labels []int32, label int32, startX, startY int, stack *[]image.Point) image.Rectangle {
	w, h := m.Width, m.Height
	box := image.Rect(startX, startY, startX+1, startY+1)

	s := append((*stack)[:0], image.Pt(startX, startY))
	labels[startY*w+startX] = label

	for len(s) > 0 {
		p := s[len(s)-1]
		s = s[:len(s)-1]

		if p.X < box.Min.X {
			box.Min.X = p.X
		}
		if p.X >= box.Max.X {
			box.Max.X = p.X + 1
		}
		if p.Y < box.Min.Y {
			box.Min.Y = p.Y
		}
		if p.Y >= box.Max.Y {
			box.Max.Y = p.Y + 1
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := p.X+dx, p.Y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				i := ny*w + nx
				if m.Pix[i] == 0 || labels[i] != 0 {
					continue
				}
				labels[i] = label
				s = append(s, image.Pt(nx, ny))
			}
		}
	}

	*stack = s
	return box
}

// mooreOffsets lists the 8 neighbours clockwise (y grows downward), starting west.
var mooreOffsets = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func mooreIndex(d image.Point) int {
	for i, o := range mooreOffsets {
		if o == d {
			return i
		}
	}
	return 0
}

// traceBoundary walks the outer boundary of component label clockwise with
// Moore-neighbour tracing and Jacob's stopping criterion (stop when the start
// pixel is about to be left in the same direction as the first move).
//
// start must be the component's first pixel in raster order, so its west
// neighbour is guaranteed to be outside the component.
func traceBoundary(labels []int32, w, h int, label int32, start image.Point) []image.Point {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.X < w && p.Y >= 0 && p.Y < h && labels[p.Y*w+p.X] == label
	}

	points := []image.Point{start}
	cur := start
	back := 0 // direction from cur to the last background pixel examined
	firstMove := -1

	// Every boundary pixel can be entered at most 4 times with a different
	// backtrack direction; the guard only protects against a broken invariant.
	for guard := 0; guard < 4*w*h+8; guard++ {
		found := -1
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			if inside(cur.Add(mooreOffsets[d])) {
				found = d
				break
			}
		}
		if found < 0 {
			break // single isolated pixel
		}

		if cur == start {
			if firstMove < 0 {
				firstMove = found
			} else if found == firstMove {
				points = points[:len(points)-1]
				break
			}
		}

		next := cur.Add(mooreOffsets[found])
		lastBackground := cur.Add(mooreOffsets[(found+7)%8])
		back = mooreIndex(lastBackground.Sub(next))

		points = append(points, next)
		cur = next
	}
	return points
}

// fillComponent renders the region enclosed by component label inside box as a
// box-sized mask. Pixels of the component are enclosed; so are background pixels
// that cannot reach the box border through 4-connected non-component pixels.
func fillComponent(labels []int32, w int, label int32, box image.Rectangle) *Mask {
	bw, bh := box.Dx(), box.Dy()
	filled := NewMask(bw, bh)
	for i := range filled.Pix {
		filled.Pix[i] = 1
	}

	isOpen := func(fx, fy int) bool {
		return labels[(box.Min.Y+fy)*w+box.Min.X+fx] != label
	}

	var queue []image.Point
	push := func(fx, fy int) {
		i := fy*bw + fx
		if filled.Pix[i] == 0 || !isOpen(fx, fy) {
			return
		}
		filled.Pix[i] = 0
		queue = append(queue, image.Pt(fx, fy))
	}

	for fx := 0; fx < bw; fx++ {
		push(fx, 0)
		push(fx, bh-1)
	}
	for fy := 0; fy < bh; fy++ {
		push(0, fy)
		push(bw-1, fy)
	}

	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if p.X > 0 {
			push(p.X-1, p.Y)
		}
		if p.X < bw-1 {
			push(p.X+1, p.Y)
		}
		if p.Y > 0 {
			push(p.X, p.Y-1)
		}
		if p.Y < bh-1 {
			push(p.X, p.Y+1)
		}
	}
	return filled
}

// regionMoments returns the pixel count and raw moments of a filled mask whose
// top-left pixel sits at origin.
func regionMoments(filled *Mask, origin image.Point) (int, Moments) {
	var (
		area int
		mo   Moments
	)
	for fy := 0; fy < filled.Height; fy++ {
		row := filled.Pix[fy*filled.Width : (fy+1)*filled.Width]
		for fx, v := range row {
			if v == 0 {
				continue
			}
			area++
			mo.M10 += float64(origin.X + fx)
			mo.M01 += float64(origin.Y + fy)
		}
	}
	mo.M00 = float64(area)
	return area, mo
}
