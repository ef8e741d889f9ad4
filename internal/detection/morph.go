package detection

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// Clean removes speckle noise from m and fills small gaps, in place, using a
// square kernelSize x kernelSize structuring element: an opening (erode then
// dilate) followed by a closing (dilate then erode).
//
// Opening runs first so that isolated noise is gone before closing gets a
// chance to bridge it onto the line. Borders are edge-extended, so pixels
// outside the mask neither erode nor dilate their neighbours.
func Clean(m *Mask, kernelSize int) {
	if kernelSize <= 1 || m.Width == 0 || m.Height == 0 {
		return
	}
	r := morphRadius(kernelSize)

	var img image.Image = m.Gray()
	img = effect.Dilate(effect.Erode(img, r), r)
	img = effect.Erode(effect.Dilate(img, r), r)
	m.load(img.(*image.RGBA))
}

// Erode erodes m in place with a square kernel.
func Erode(m *Mask, kernelSize int) {
	if kernelSize <= 1 || m.Width == 0 || m.Height == 0 {
		return
	}
	m.load(effect.Erode(m.Gray(), morphRadius(kernelSize)))
}

// Dilate dilates m in place with a square kernel.
func Dilate(m *Mask, kernelSize int) {
	if kernelSize <= 1 || m.Width == 0 || m.Height == 0 {
		return
	}
	m.load(effect.Dilate(m.Gray(), morphRadius(kernelSize)))
}

// morphRadius converts a kernel side to bild's radius. bild's window side is
// int(2r+1.5) anchored at side/2, which for r = (k-1)/2 is exactly k for odd
// and even k, with the same anchor OpenCV uses.
func morphRadius(kernelSize int) float64 {
	return float64(kernelSize-1) / 2
}

// load thresholds a filtered mask image back into m.
func (m *Mask) load(img *image.RGBA) {
	for y := 0; y < m.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < m.Width; x++ {
			var v uint8
			if row[x*4] >= 128 {
				v = 1
			}
			m.Pix[y*m.Width+x] = v
		}
	}
}
