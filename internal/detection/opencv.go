//go:build gocv

package detection

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// OpenCVDetector runs the same stages as Pipeline with OpenCV primitives. It
// shares Config, the deciders and the Result type with the pure Go pipeline.
//
// Contour area is the polygon area reported by OpenCV, which is slightly smaller
// than the enclosed pixel count the pure Go pipeline uses.
type OpenCVDetector struct {
	cfg     Config
	decider Decider
	logger  *slog.Logger
}

// NewOpenCVDetector validates cfg and builds an OpenCV-backed detector.
func NewOpenCVDetector(cfg Config, opts ...Option) (*OpenCVDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	o, err := buildOptions(&cfg, opts)
	if err != nil {
		return nil, err
	}
	return &OpenCVDetector{cfg: cfg, decider: o.decider, logger: o.logger}, nil
}

// Name returns BackendOpenCV.
func (d *OpenCVDetector) Name() string { return BackendOpenCV }

// Detect returns the direction for frame. It never panics.
func (d *OpenCVDetector) Detect(frame image.Image, roi *imaging.ROI) Result {
	return d.Analyze(frame, roi).Result
}

// Analyze runs the OpenCV pipeline and reports every intermediate value.
func (d *OpenCVDetector) Analyze(frame image.Image, roi *imaging.ROI) (a *Analysis) {
	a = &Analysis{Backend: BackendOpenCV, Decider: d.decider.Name()}
	defer recoverAnalysis(a, d.logger)

	mask, region, applied, err := d.mask(frame, roi)
	if err != nil {
		a.fail(err)
		return a
	}
	defer mask.Close()

	a.setRegion(region, applied, d.cfg.Decision.SteadyMargin)
	a.MinArea = d.cfg.minArea(applied)
	a.MaskPixels = gocv.CountNonZero(mask)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()
	a.ContourCount = contours.Size()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 || bestArea < float64(a.MinArea) {
		a.Result = noTape()
		d.logger.Debug("no tape", "backend", BackendOpenCV, "region", region, "contours", a.ContourCount)
		return a
	}

	filled := gocv.NewMatWithSize(region.Height, region.Width, gocv.MatTypeCV8U)
	defer filled.Close()
	filled.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.DrawContours(&filled, contours, best, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	c := contours.At(best)
	rr := gocv.MinAreaRect(c)
	angle, w, h := NormalizeTilt(rr.Angle, float64(rr.Width), float64(rr.Height))

	mo := gocv.Moments(filled, true)
	moments := Moments{M00: mo["m00"], M10: mo["m10"], M01: mo["m01"]}

	shape := Shape{
		Area: int(bestArea),
		Box:  gocv.BoundingRect(c),
		Oriented: OrientedRect{
			Center: PointF{X: float64(rr.Center.X), Y: float64(rr.Center.Y)},
			Width:  w,
			Height: h,
			Angle:  angle,
		},
		Mass: matSplitter{filled},
	}
	shape.CX, shape.CY, shape.HasCentroid = moments.Centroid()

	dec := d.decider.Decide(shape, image.Rect(0, 0, region.Width, region.Height))
	a.Result = dec.Result
	a.Signals = &dec.Signals
	a.Contour = newContourInfo(shape, c.ToPoints(), region)

	d.logger.Debug("tape detected",
		"backend", BackendOpenCV,
		"direction", a.Result.Direction.String(),
		"confidence", a.Result.Confidence,
		"area", bestArea,
	)
	return a
}

// Mask returns the cleaned tape mask of the working region.
func (d *OpenCVDetector) Mask(frame image.Image, roi *imaging.ROI) (out *MaskOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()

	mask, region, applied, err := d.mask(frame, roi)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	img, err := mask.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected mask image %T", ErrComputation, img)
	}
	return &MaskOutput{Image: gray, Region: region, ROIApplied: applied, Pixels: gocv.CountNonZero(mask)}, nil
}

// mask crops, thresholds and cleans the working region. The caller owns the
// returned Mat.
func (d *OpenCVDetector) mask(frame image.Image, roi *imaging.ROI) (gocv.Mat, imaging.ROI, bool, error) {
	bounds, err := frameBounds(frame)
	if err != nil {
		return gocv.Mat{}, imaging.ROI{}, false, err
	}
	region, applied := imaging.ClampROI(bounds.Dx(), bounds.Dy(), roi, d.cfg.MinROISize)

	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return gocv.Mat{}, region, applied, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer src.Close()

	work := src.Region(region.Rect())
	defer work.Close()

	if r := d.cfg.Segmentation.BlurRadius; r > 0 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(work, &blurred, image.Pt(0, 0), r, r, gocv.BorderDefault)
		work = blurred
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(work, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	inRange(hsv, d.cfg.Segmentation.Core, &mask)

	if sec := d.cfg.Segmentation.Secondary; !sec.IsZero() {
		secMask := gocv.NewMat()
		defer secMask.Close()
		inRange(hsv, sec, &secMask)
		gocv.BitwiseOr(mask, secMask, &mask)
	}

	k := d.cfg.Morphology.KernelSize
	if k > 1 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
		defer kernel.Close()
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	}
	return mask, region, applied, nil
}

func inRange(hsv gocv.Mat, r HSVRange, dst *gocv.Mat) {
	lo := gocv.NewScalar(float64(r.HMin), float64(r.SMin), float64(r.VMin), 0)
	hi := gocv.NewScalar(float64(r.HMax), float64(r.SMax), float64(r.VMax), 0)
	gocv.InRangeWithScalar(hsv, lo, hi, dst)
}

// matSplitter counts non-zero pixels of a filled contour Mat on either side of
// a column.
type matSplitter struct {
	filled gocv.Mat
}

func (m matSplitter) SplitAt(x int) (left, right int) {
	w, h := m.filled.Cols(), m.filled.Rows()
	x = max(0, min(x, w))
	if x > 0 {
		l := m.filled.Region(image.Rect(0, 0, x, h))
		left = gocv.CountNonZero(l)
		l.Close()
	}
	if x < w {
		r := m.filled.Region(image.Rect(x, 0, w, h))
		right = gocv.CountNonZero(r)
		r.Close()
	}
	return left, right
}
