package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// DefaultMinROISize is the smallest usable ROI side. A clamped ROI whose width or
// height is at or below this value is discarded in favor of the full frame.
const DefaultMinROISize = 10

// ROI is a region of interest in frame pixel coordinates, relative to the frame's
// top-left corner.
type ROI struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the ROI to an image.Rectangle (exclusive max corner).
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Area returns Width*Height.
func (r ROI) Area() int {
	return r.Width * r.Height
}

// ClampROI clips roi to a width x height frame.
//
// The origin is clamped to be non-negative and the size is then limited so the
// rectangle stays inside the frame. The size is not reduced by the amount the
// origin moved: {-10, -10, 50, 50} on a 640x480 frame becomes {0, 0, 50, 50}.
//
// Returns the working region and whether the ROI was applied. When roi is nil, or
// the clamped width or height is at or below minSize, the full frame
// {0, 0, width, height} is returned with applied == false.
//
// Clamping is idempotent: clamping an already valid ROI returns it unchanged.
func ClampROI(width, height int, roi *ROI, minSize int) (region ROI, applied bool) {
	full := ROI{X: 0, Y: 0, Width: width, Height: height}
	if roi == nil {
		return full, false
	}

	x := max(roi.X, 0)
	y := max(roi.Y, 0)
	w := min(roi.Width, width-x)
	h := min(roi.Height, height-y)

	if w <= minSize || h <= minSize {
		return full, false
	}
	return ROI{X: x, Y: y, Width: w, Height: h}, true
}

// CropRegion clamps roi against frame and returns the working region as a fresh
// *image.NRGBA whose bounds start at (0,0).
//
// The returned image never aliases the frame's pixels, so later stages may
// reuse or overwrite it freely. Any failure while cropping (including a panic from
// an exotic image.Image implementation) falls back to a copy of the full frame;
// the returned region and applied flag always describe what was actually copied.
func CropRegion(frame image.Image, roi *ROI, minSize int) (work *image.NRGBA, region ROI, applied bool) {
	bounds := frame.Bounds()
	full := ROI{X: 0, Y: 0, Width: bounds.Dx(), Height: bounds.Dy()}

	region, applied = ClampROI(bounds.Dx(), bounds.Dy(), roi, minSize)
	if !applied {
		return imaging.Clone(frame), full, false
	}

	defer func() {
		if r := recover(); r != nil {
			work, region, applied = imaging.Clone(frame), full, false
		}
	}()

	work = imaging.Crop(frame, region.Rect().Add(bounds.Min))
	if work.Bounds().Dx() != region.Width || work.Bounds().Dy() != region.Height {
		return imaging.Clone(frame), full, false
	}
	return work, region, true
}

// EncodePNGBase64 encodes img as PNG and returns it base64 encoded (standard encoding).
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
