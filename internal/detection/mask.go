package detection

import (
	"image"
	"sync"
)

// Mask is a single-channel binary image. Pix holds one byte per pixel in
// row-major order, 1 for tape and 0 for background.
//
// Masks are backed by a process-wide buffer pool. The stage that creates a mask
// owns it and must call Release exactly once, normally via defer, after which the
// mask must not be used. Release on a nil mask is a no-op.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// bufferPool recycles mask backing slices. Per-frame masks are the largest
// allocations in the pipeline and are created several times per call.
var bufferPool sync.Pool // stores *[]uint8

// NewMask returns a zeroed width x height mask from the pool.
func NewMask(width, height int) *Mask {
	n := max(width, 0) * max(height, 0)

	var buf []uint8
	if v := bufferPool.Get(); v != nil {
		buf = *(v.(*[]uint8))
	}
	if cap(buf) < n {
		buf = make([]uint8, n)
	} else {
		buf = buf[:n]
		clear(buf)
	}

	return &Mask{Width: width, Height: height, Pix: buf}
}

// Release returns the mask's buffer to the pool.
func (m *Mask) Release() {
	if m == nil || m.Pix == nil {
		return
	}
	buf := m.Pix
	m.Pix = nil
	bufferPool.Put(&buf)
}

// At reports whether (x, y) is set. Coordinates outside the mask are unset.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set sets or clears (x, y). Coordinates outside the mask are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	var b uint8
	if v {
		b = 1
	}
	m.Pix[y*m.Width+x] = b
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// FillRect sets every pixel of r that lies inside the mask.
func (m *Mask) FillRect(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = 1
		}
	}
}

// Gray renders the mask as a new grayscale image (255 = tape, 0 = background).
// The returned image does not share memory with the mask.
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v != 0 {
			img.Pix[i] = 255
		}
	}
	return img
}
