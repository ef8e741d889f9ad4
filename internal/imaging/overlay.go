package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay describes what Annotate draws on top of a frame. All geometry is in
// frame coordinates (relative to the frame's top-left corner). Empty rectangles,
// a nil Centroid and an empty Contour are skipped.
type Overlay struct {
	Region     image.Rectangle
	SteadyZone image.Rectangle
	Box        image.Rectangle
	Contour    []image.Point
	Centroid   *image.Point
	Label      string

	// BoxColor is an optional "#RRGGBB" or "#RRGGBBAA" color for the contour box
	// and outline. Invalid or empty values fall back to magenta.
	BoxColor string
}

// AnnotateResult contains the annotated frame as a base64 PNG.
type AnnotateResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

var (
	regionColor = color.RGBA{0, 160, 255, 255}
	steadyColor = color.RGBA{0, 220, 0, 255}
	labelFG     = color.RGBA{255, 255, 255, 255}
	labelBG     = color.RGBA{0, 0, 0, 180}
)

// Annotate renders ov over a copy of frame and returns it as a PNG.
//
// Drawing order is region, steady zone, contour outline, bounding box, centroid
// cross, then the label in the region's top-left corner, so the detection itself
// always ends up on top of the reference rectangles.
func Annotate(frame image.Image, ov Overlay) (*AnnotateResult, error) {
	bounds := frame.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), frame, bounds.Min, draw.Src)

	boxColor, err := parseHexColor(ov.BoxColor)
	if err != nil {
		boxColor = color.RGBA{255, 0, 255, 255}
	}

	strokeRect(canvas, ov.Region, regionColor)
	strokeRect(canvas, ov.SteadyZone, steadyColor)
	for _, p := range ov.Contour {
		setClipped(canvas, p.X, p.Y, boxColor)
	}
	strokeRect(canvas, ov.Box, boxColor)
	if ov.Centroid != nil {
		c := *ov.Centroid
		for d := -4; d <= 4; d++ {
			setClipped(canvas, c.X+d, c.Y, boxColor)
			setClipped(canvas, c.X, c.Y+d, boxColor)
		}
	}
	if ov.Label != "" {
		origin := ov.Region.Min
		if ov.Region.Empty() {
			origin = image.Point{}
		}
		drawLabel(canvas, origin.X+2, origin.Y+2, ov.Label)
	}

	encoded, err := EncodePNGBase64(canvas)
	if err != nil {
		return nil, err
	}
	return &AnnotateResult{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// strokeRect draws a one pixel outline just inside r.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		setClipped(img, x, r.Min.Y, c)
		setClipped(img, x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		setClipped(img, r.Min.X, y, c)
		setClipped(img, r.Max.X-1, y, c)
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel draws text with basicfont.Face7x13 on a translucent background box
// whose top-left corner is (x, y).
func drawLabel(img *image.RGBA, x, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelFG), Face: face}
	width := d.MeasureString(text).Ceil()
	height := face.Height

	bg := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(img.Rect)
	draw.Draw(img, bg, image.NewUniform(labelBG), image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Ascent)}
	d.DrawString(text)
}

// parseHexColor parses "#RGB", "#RRGGBB" or "#RRGGBBAA" (the leading '#' is
// optional). The color part is decoded by go-colorful.
func parseHexColor(hex string) (color.RGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	alpha := uint8(255)

	switch len(hex) {
	case 3, 6:
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in color %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}
