package detection

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	tapeimaging "github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// Segmenter turns a color working region into a binary tape mask.
type Segmenter struct {
	cfg SegmentationConfig
}

// NewSegmenter creates a segmenter for the given ranges. The configuration is
// expected to have passed Config.Validate.
func NewSegmenter(cfg SegmentationConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment converts img to HSV and returns a mask of the pixels that fall inside
// the core range OR the secondary range. The caller owns the returned mask.
//
// *image.NRGBA and *image.RGBA are read directly; other color models are
// converted to NRGBA first. Alpha is ignored: the capture source is opaque.
func (s *Segmenter) Segment(img image.Image) *Mask {
	if s.cfg.BlurRadius > 0 {
		img = blur.Gaussian(img, s.cfg.BlurRadius)
	}

	var (
		pix    []uint8
		stride int
		bounds = img.Bounds()
	)
	switch src := img.(type) {
	case *image.NRGBA:
		pix, stride = src.Pix, src.Stride
		pix = pix[src.PixOffset(bounds.Min.X, bounds.Min.Y):]
	case *image.RGBA:
		pix, stride = src.Pix, src.Stride
		pix = pix[src.PixOffset(bounds.Min.X, bounds.Min.Y):]
	default:
		clone := imaging.Clone(img)
		pix, stride = clone.Pix, clone.Stride
	}

	w, h := bounds.Dx(), bounds.Dy()
	mask := NewMask(w, h)
	secondary := !s.cfg.Secondary.IsZero()

	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		out := mask.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			c := tapeimaging.ToHSV(row[x*4], row[x*4+1], row[x*4+2])
			if s.cfg.Core.Contains(c) || (secondary && s.cfg.Secondary.Contains(c)) {
				out[x] = 1
			}
		}
	}
	return mask
}
