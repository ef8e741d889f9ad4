package detection

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

var (
	tapeYellow = color.RGBA{255, 255, 0, 255}
	floorGray  = color.RGBA{128, 128, 128, 255}
)

// createInMemoryImage creates a solid color frame.
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, img.Bounds(), c)
	return img
}

// fillRect paints r (clipped to img) with c.
func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// tapeFrame returns a black frame with a yellow rectangle covering columns
// x0..x1 and rows y0..y1 inclusive.
func tapeFrame(width, height, x0, y0, x1, y1 int) *image.RGBA {
	img := createInMemoryImage(width, height, color.Black)
	fillRect(img, image.Rect(x0, y0, x1+1, y1+1), tapeYellow)
	return img
}

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func TestDetect_Scenarios(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name    string
		frame   image.Image
		want    Direction
		wantPos bool
	}{
		{"all black", createInMemoryImage(400, 200, color.Black), NoTape, false},
		{"all gray", createInMemoryImage(400, 200, floorGray), NoTape, false},
		{"centered", tapeFrame(400, 200, 150, 80, 250, 120), Steady, true},
		{"left edge", tapeFrame(400, 200, 0, 80, 60, 120), Left, true},
		{"right edge", tapeFrame(400, 200, 339, 80, 399, 120), Right, true},
		{"tall line left of center", tapeFrame(400, 200, 20, 0, 60, 199), Left, true},
		{"tall line right of center", tapeFrame(400, 200, 339, 0, 379, 199), Right, true},
		{"blob below area floor", tapeFrame(400, 200, 195, 95, 204, 104), NoTape, false},
		// Touches the left edge without leaving the region: no exit factor, and
		// offset plus mass alone stay under the threshold.
		{"wide tape touching left edge", tapeFrame(400, 200, 0, 0, 269, 199), Steady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Detect(tt.frame, nil)
			if got.Direction != tt.want {
				t.Errorf("direction = %v, want %v", got.Direction, tt.want)
			}
			if tt.wantPos && got.Confidence <= 0 {
				t.Errorf("confidence = %v, want > 0", got.Confidence)
			}
			if !tt.wantPos && got.Confidence != 0 {
				t.Errorf("confidence = %v, want 0", got.Confidence)
			}
			if got.Err != nil {
				t.Errorf("unexpected error: %v", got.Err)
			}
		})
	}
}

func TestDetect_CenteredConfidence(t *testing.T) {
	p := newTestPipeline(t)
	got := p.Detect(tapeFrame(400, 200, 150, 80, 250, 120), nil)

	// 101x41 pixels of 400x200, scaled by 15.
	want := 101.0 * 41 / (400 * 200) * 100 * 15
	if math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", got.Confidence, want)
	}
}

func TestDetect_ConfidenceMonotonic(t *testing.T) {
	p := newTestPipeline(t)

	prev := -1.0
	for half := 10; half <= 200; half += 10 {
		res := p.Detect(tapeFrame(400, 200, 200-half, 60, 199+half, 139), nil)
		if res.Confidence < prev {
			t.Fatalf("confidence dropped from %v to %v at half width %d", prev, res.Confidence, half)
		}
		if res.Confidence > 100 {
			t.Fatalf("confidence %v exceeds 100", res.Confidence)
		}
		prev = res.Confidence
	}
	if prev != 100 {
		t.Errorf("full-width tape confidence = %v, want 100", prev)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	p := newTestPipeline(t)
	frame := tapeFrame(400, 200, 40, 30, 120, 170)
	roi := &imaging.ROI{X: 10, Y: 10, Width: 300, Height: 180}

	first := p.Analyze(frame, roi)
	second := p.Analyze(frame, roi)
	if first.Result != second.Result {
		t.Errorf("results differ: %+v vs %+v", first.Result, second.Result)
	}
	if *first.Signals != *second.Signals {
		t.Errorf("signals differ: %+v vs %+v", *first.Signals, *second.Signals)
	}
}

func TestDetect_Concurrent(t *testing.T) {
	p := newTestPipeline(t)
	frames := []image.Image{
		tapeFrame(400, 200, 150, 80, 250, 120),
		tapeFrame(400, 200, 0, 80, 60, 120),
		tapeFrame(400, 200, 339, 80, 399, 120),
		createInMemoryImage(400, 200, floorGray),
	}
	want := make([]Result, len(frames))
	for i, f := range frames {
		want[i] = p.Detect(f, nil)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, f := range frames {
				if got := p.Detect(f, nil); got != want[i] {
					errs <- got.Direction.String()
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent call returned %s", e)
	}
}

func TestAnalyze_ROI(t *testing.T) {
	p := newTestPipeline(t)
	frame := tapeFrame(640, 480, 300, 250, 340, 350)

	a := p.Analyze(frame, &imaging.ROI{X: 200, Y: 200, Width: 240, Height: 200})
	if !a.ROIApplied {
		t.Fatal("expected ROI to be applied")
	}
	if a.Region != (imaging.ROI{X: 200, Y: 200, Width: 240, Height: 200}) {
		t.Errorf("region = %+v", a.Region)
	}
	if a.MinArea != DefaultConfig().Contours.MinAreaROI {
		t.Errorf("min area = %d, want ROI floor", a.MinArea)
	}
	if a.Contour == nil {
		t.Fatalf("expected a contour, got result %+v", a.Result)
	}
	// Geometry is reported in frame coordinates.
	wantBox := imaging.ROI{X: 300, Y: 250, Width: 41, Height: 101}
	if a.Contour.Box != wantBox {
		t.Errorf("box = %+v, want %+v", a.Contour.Box, wantBox)
	}
	if c := a.Contour.Centroid; c == nil || math.Abs(c.X-320) > 1e-9 || math.Abs(c.Y-300) > 1e-9 {
		t.Errorf("centroid = %+v, want (320, 300)", c)
	}
	if a.Result.Direction != Steady {
		t.Errorf("direction = %v, want Steady", a.Result.Direction)
	}
}

func TestAnalyze_TinyROIFallsBackToFullFrame(t *testing.T) {
	p := newTestPipeline(t)
	frame := tapeFrame(400, 200, 150, 80, 250, 120)

	a := p.Analyze(frame, &imaging.ROI{X: 5, Y: 5, Width: 8, Height: 100})
	if a.ROIApplied {
		t.Error("tiny ROI should not be applied")
	}
	if a.Region != (imaging.ROI{Width: 400, Height: 200}) {
		t.Errorf("region = %+v, want full frame", a.Region)
	}
	if a.MinArea != DefaultConfig().Contours.MinAreaFull {
		t.Errorf("min area = %d, want full-frame floor", a.MinArea)
	}
	if a.Result.Direction != Steady {
		t.Errorf("direction = %v, want Steady", a.Result.Direction)
	}
}

func TestAnalyze_SteadyZoneAndSignals(t *testing.T) {
	p := newTestPipeline(t)

	a := p.Analyze(tapeFrame(400, 200, 150, 80, 250, 120), nil)
	if a.SteadyZone != (imaging.ROI{X: 80, Y: 40, Width: 240, Height: 120}) {
		t.Errorf("steady zone = %+v", a.SteadyZone)
	}
	if a.Signals == nil || !a.Signals.InSteadyZone {
		t.Errorf("expected in-steady-zone signal, got %+v", a.Signals)
	}

	a = p.Analyze(tapeFrame(400, 200, 0, 80, 60, 120), nil)
	s := a.Signals
	if s == nil {
		t.Fatal("expected signals")
	}
	if s.MassBias != -1 {
		t.Errorf("mass bias = %v, want -1", s.MassBias)
	}
	if s.HorizontalBias >= 0 || s.Evidence >= -0.25 {
		t.Errorf("expected left-leaning signals, got %+v", *s)
	}
	if s.ExitFactor != 0 {
		t.Errorf("exit factor = %v, want 0 for a box inside the region", s.ExitFactor)
	}
}

func TestAnalyze_ExitFactorAtLiteralEdge(t *testing.T) {
	frame := tapeFrame(400, 200, 0, 0, 269, 199)

	a := newTestPipeline(t).Analyze(frame, nil)
	if a.Signals == nil {
		t.Fatal("expected signals")
	}
	if a.Signals.ExitFactor != 0 {
		t.Errorf("exit factor = %v, want 0", a.Signals.ExitFactor)
	}
	// (134.5-200)/200*0.3 + (70-200)/270*0.3
	if want := -0.2427; math.Abs(a.Signals.Evidence-want) > 1e-3 {
		t.Errorf("evidence = %v, want %v", a.Signals.Evidence, want)
	}
	if a.Result.Direction != Steady {
		t.Errorf("direction = %v, want Steady", a.Result.Direction)
	}

	// An inset margin is opt-in and turns the same frame into a Left.
	cfg := DefaultConfig()
	cfg.Decision.ExitMargin = 0.05
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	a = p.Analyze(frame, nil)
	if a.Signals.ExitFactor >= 0 || a.Result.Direction != Left {
		t.Errorf("with inset: direction = %v, exit = %v", a.Result.Direction, a.Signals.ExitFactor)
	}
}

func TestDetect_InvalidInput(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name  string
		frame image.Image
	}{
		{"nil frame", nil},
		{"empty frame", image.NewRGBA(image.Rect(0, 0, 0, 0))},
		{"bounds panic", panicBoundsImage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Detect(tt.frame, nil)
			if got.Direction != DetectionError {
				t.Errorf("direction = %v, want DetectionError", got.Direction)
			}
			if got.Confidence != 0 {
				t.Errorf("confidence = %v, want 0", got.Confidence)
			}
			if !errors.Is(got.Err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", got.Err)
			}
		})
	}
}

func TestDetect_RecoversFromPanics(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Detect(panicPixelsImage{image.Rect(0, 0, 50, 50)}, nil)
	if got.Direction != DetectionError {
		t.Errorf("direction = %v, want DetectionError", got.Direction)
	}
	if !errors.Is(got.Err, ErrComputation) {
		t.Errorf("err = %v, want ErrComputation", got.Err)
	}
}

func TestNewPipeline_Options(t *testing.T) {
	d, err := NewDecider(DeciderTiltOffset, DefaultConfig().Decision)
	if err != nil {
		t.Fatalf("NewDecider failed: %v", err)
	}
	p := newTestPipeline(t, WithDecider(d), WithLogger(nil))

	a := p.Analyze(tapeFrame(400, 200, 150, 80, 250, 120), nil)
	if a.Decider != DeciderTiltOffset {
		t.Errorf("decider = %q, want %q", a.Decider, DeciderTiltOffset)
	}
	if a.Backend != BackendNative {
		t.Errorf("backend = %q, want %q", a.Backend, BackendNative)
	}
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decider = "coin-flip"
	if _, err := NewPipeline(cfg); err == nil {
		t.Error("expected error for unknown decider")
	}
}

func TestNewBackend(t *testing.T) {
	a, err := NewBackend("", DefaultConfig())
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	if a.Name() != BackendNative {
		t.Errorf("name = %q, want %q", a.Name(), BackendNative)
	}
	if _, err := NewBackend("cuda", DefaultConfig()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestPipeline_Mask(t *testing.T) {
	p := newTestPipeline(t)

	out, err := p.Mask(tapeFrame(400, 200, 150, 80, 250, 120), nil)
	if err != nil {
		t.Fatalf("Mask failed: %v", err)
	}
	if out.Pixels != 101*41 {
		t.Errorf("pixels = %d, want %d", out.Pixels, 101*41)
	}
	if b := out.Image.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("mask size = %v", b)
	}
	if out.Image.GrayAt(200, 100).Y != 255 || out.Image.GrayAt(10, 10).Y != 0 {
		t.Error("mask pixels do not match the tape")
	}

	if _, err := p.Mask(nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAnalysis_Overlay(t *testing.T) {
	p := newTestPipeline(t)
	a := p.Analyze(tapeFrame(400, 200, 150, 80, 250, 120), nil)

	ov := a.Overlay()
	if ov.Box != image.Rect(150, 80, 251, 121) {
		t.Errorf("box = %v", ov.Box)
	}
	if ov.Centroid == nil || *ov.Centroid != image.Pt(200, 100) {
		t.Errorf("centroid = %v", ov.Centroid)
	}
	if ov.Label == "" || len(ov.Contour) == 0 {
		t.Error("expected label and contour points")
	}
}

// panicBoundsImage fails as soon as its bounds are read.
type panicBoundsImage struct{}

func (panicBoundsImage) ColorModel() color.Model { return color.RGBAModel }
func (panicBoundsImage) Bounds() image.Rectangle { panic("bounds unavailable") }
func (panicBoundsImage) At(int, int) color.Color { return color.Black }

// panicPixelsImage has valid bounds but fails on every pixel read.
type panicPixelsImage struct {
	r image.Rectangle
}

func (panicPixelsImage) ColorModel() color.Model   { return color.RGBAModel }
func (p panicPixelsImage) Bounds() image.Rectangle { return p.r }
func (panicPixelsImage) At(int, int) color.Color   { panic("pixel read failed") }
