package imaging

import (
	"fmt"
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// HSVColor is a color in the 8-bit HSV convention used by OpenCV and by the tape
// segmentation ranges.
//
// Hue is halved to fit a byte, so pure yellow (60°) is H=30 and pure blue (240°)
// is H=120:
//   - H: 0-179
//   - S: 0-255 (0 = gray)
//   - V: 0-255 (0 = black)
type HSVColor struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// ColorResult contains a color value in multiple representations.
//
// The HSV member uses the same units as the segmentation configuration, so a
// value sampled from a capture of the tape can be pasted straight into the
// hue/saturation/value bounds.
type ColorResult struct {
	Hex string   `json:"hex"` // Hex format "#RRGGBB" (no alpha)
	RGB RGBColor `json:"rgb"` // RGB components
	HSL HSLColor `json:"hsl"` // HSL representation
	HSV HSVColor `json:"hsv"` // HSV representation (OpenCV 8-bit units)
}

// SampleColor extracts the color value at a specific pixel coordinate.
//
// Coordinates are 0-based relative to the frame's top-left corner. Returns an
// error if (x, y) is outside the frame.
func SampleColor(img image.Image, x, y int) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < 0 || x >= bounds.Dx() || y < 0 || y >= bounds.Dy() {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)

	return &ColorResult{
		Hex: fmt.Sprintf("#%02X%02X%02X", r8, g8, b8),
		RGB: RGBColor{R: r8, G: g8, B: b8},
		HSL: rgbToHSL(r8, g8, b8),
		HSV: ToHSV(r8, g8, b8),
	}, nil
}

// ToHSV converts 8-bit RGB components to the OpenCV 8-bit HSV convention.
//
// The conversion itself is done by go-colorful in floating point (hue in
// degrees, saturation and value in 0-1) and then scaled: H = hue/2 rounded and
// wrapped into 0-179, S and V are scaled to 0-255 and rounded.
func ToHSV(r, g, b uint8) HSVColor {
	c := colorful.Color{R: float64(r) / 255.0, G: float64(g) / 255.0, B: float64(b) / 255.0}
	h, s, v := c.Hsv()

	hue := int(math.Round(h/2)) % 180
	return HSVColor{
		H: uint8(hue),
		S: uint8(math.Round(s * 255)),
		V: uint8(math.Round(v * 255)),
	}
}

// rgbToHSL converts 8-bit RGB values to HSL with integer degrees and percentages.
func rgbToHSL(r, g, b uint8) HSLColor {
	c := colorful.Color{R: float64(r) / 255.0, G: float64(g) / 255.0, B: float64(b) / 255.0}
	h, s, l := c.Hsl()
	return HSLColor{
		H: int(h),
		S: int(s * 100),
		L: int(l * 100),
	}
}
