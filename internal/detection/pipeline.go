package detection

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// Backend names accepted by NewBackend.
const (
	BackendNative = "native"
	BackendOpenCV = "opencv"
)

// Detector decides the steering direction for one frame.
//
// Implementations hold no per-call state and may be used from several
// goroutines at once, each with its own frame.
type Detector interface {
	Detect(frame image.Image, roi *imaging.ROI) Result
}

// Analyzer is a Detector that can also explain its decision.
type Analyzer interface {
	Detector
	Name() string
	Analyze(frame image.Image, roi *imaging.ROI) *Analysis
	Mask(frame image.Image, roi *imaging.ROI) (*MaskOutput, error)
}

// Analysis is the full account of one detection call. All geometry is in frame
// coordinates.
type Analysis struct {
	Result       Result       `json:"result"`
	Backend      string       `json:"backend"`
	Decider      string       `json:"decider"`
	Region       imaging.ROI  `json:"region"`
	ROIApplied   bool         `json:"roi_applied"`
	SteadyZone   imaging.ROI  `json:"steady_zone"`
	MaskPixels   int          `json:"mask_pixels"`
	ContourCount int          `json:"contour_count"`
	MinArea      int          `json:"min_area"`
	Contour      *ContourInfo `json:"contour,omitempty"`
	Signals      *Signals     `json:"signals,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ContourInfo describes the selected contour.
type ContourInfo struct {
	Area       int           `json:"area"`
	Box        imaging.ROI   `json:"box"`
	Centroid   *PointF       `json:"centroid,omitempty"`
	Oriented   OrientedRect  `json:"oriented"`
	PointCount int           `json:"point_count"`
	Points     []image.Point `json:"-"`
}

// MaskOutput is the cleaned tape mask of the working region.
type MaskOutput struct {
	Image      *image.Gray
	Region     imaging.ROI
	ROIApplied bool
	Pixels     int
}

// Option configures a detector.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	decider Decider
}

// WithLogger sets the logger used for per-frame debug records and recovered
// failures. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDecider overrides the decider selected by Config.Decider.
func WithDecider(d Decider) Option {
	return func(o *options) {
		if d != nil {
			o.decider = d
		}
	}
}

func buildOptions(cfg *Config, opts []Option) (options, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.decider == nil {
		d, err := NewDecider(cfg.Decider, cfg.Decision)
		if err != nil {
			return o, err
		}
		o.decider = d
	}
	return o, nil
}

// NewBackend returns the named detector backend.
func NewBackend(name string, cfg Config, opts ...Option) (Analyzer, error) {
	switch name {
	case "", BackendNative:
		p, err := NewPipeline(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendOpenCV:
		d, err := NewOpenCVDetector(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// Pipeline is the pure Go detector: crop, segment, clean, find contours,
// analyze the largest one, decide.
type Pipeline struct {
	cfg     Config
	seg     *Segmenter
	decider Decider
	logger  *slog.Logger
}

// NewPipeline validates cfg and builds a pipeline.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	o, err := buildOptions(&cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		seg:     NewSegmenter(cfg.Segmentation),
		decider: o.decider,
		logger:  o.logger,
	}, nil
}

// Name returns BackendNative.
func (p *Pipeline) Name() string { return BackendNative }

// Config returns the validated configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Detect returns the direction for frame. It never panics.
func (p *Pipeline) Detect(frame image.Image, roi *imaging.ROI) Result {
	return p.Analyze(frame, roi).Result
}

// Analyze runs the pipeline and reports every intermediate value. It never
// panics: failures come back as a DetectionError result.
func (p *Pipeline) Analyze(frame image.Image, roi *imaging.ROI) (a *Analysis) {
	a = &Analysis{Backend: BackendNative, Decider: p.decider.Name()}
	defer recoverAnalysis(a, p.logger)

	if _, err := frameBounds(frame); err != nil {
		a.fail(err)
		return a
	}

	work, region, applied := imaging.CropRegion(frame, roi, p.cfg.MinROISize)
	a.setRegion(region, applied, p.cfg.Decision.SteadyMargin)
	a.MinArea = p.cfg.minArea(applied)

	mask := p.seg.Segment(work)
	defer mask.Release()
	Clean(mask, p.cfg.Morphology.KernelSize)
	a.MaskPixels = mask.Count()

	contours := FindContours(mask)
	defer contours.Release()
	a.ContourCount = len(contours)

	best := contours.Largest()
	if best == nil || best.Area < a.MinArea {
		a.Result = noTape()
		p.logger.Debug("no tape", "region", region, "mask_pixels", a.MaskPixels, "contours", a.ContourCount)
		return a
	}

	shape := AnalyzeShape(best)
	d := p.decider.Decide(shape, image.Rect(0, 0, region.Width, region.Height))
	a.Result = d.Result
	a.Signals = &d.Signals
	a.Contour = newContourInfo(shape, best.Points, region)

	p.logger.Debug("tape detected",
		"direction", a.Result.Direction.String(),
		"confidence", a.Result.Confidence,
		"area", shape.Area,
		"evidence", d.Signals.Evidence,
	)
	return a
}

// Mask returns the cleaned tape mask of the working region.
func (p *Pipeline) Mask(frame image.Image, roi *imaging.ROI) (out *MaskOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()

	if _, err := frameBounds(frame); err != nil {
		return nil, err
	}
	work, region, applied := imaging.CropRegion(frame, roi, p.cfg.MinROISize)

	mask := p.seg.Segment(work)
	defer mask.Release()
	Clean(mask, p.cfg.Morphology.KernelSize)

	return &MaskOutput{
		Image:      mask.Gray(),
		Region:     region,
		ROIApplied: applied,
		Pixels:     mask.Count(),
	}, nil
}

// frameBounds returns the frame's bounds, or an error wrapping ErrInvalidInput
// for nil, empty or broken frames.
func frameBounds(frame image.Image) (b image.Rectangle, err error) {
	if frame == nil {
		return b, fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidInput, r)
		}
	}()
	b = frame.Bounds()
	if b.Empty() {
		return b, fmt.Errorf("%w: empty frame %v", ErrInvalidInput, b)
	}
	return b, nil
}

func recoverAnalysis(a *Analysis, logger *slog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("%w: %v", ErrComputation, r)
	a.fail(err)
	a.Contour, a.Signals = nil, nil
	logger.Warn("detection failed", "backend", a.Backend, "error", err)
}

func (a *Analysis) fail(err error) {
	a.Result = errorResult(err)
	a.Error = err.Error()
}

func (a *Analysis) setRegion(region imaging.ROI, applied bool, margin float64) {
	a.Region = region
	a.ROIApplied = applied
	zone := SteadyZone(image.Rect(0, 0, region.Width, region.Height), margin)
	a.SteadyZone = toFrameROI(zone, region)
}

func newContourInfo(s Shape, points []image.Point, region imaging.ROI) *ContourInfo {
	off := image.Pt(region.X, region.Y)
	info := &ContourInfo{
		Area:       s.Area,
		Box:        toFrameROI(s.Box, region),
		Oriented:   s.Oriented,
		PointCount: len(points),
		Points:     make([]image.Point, len(points)),
	}
	info.Oriented.Center.X += float64(off.X)
	info.Oriented.Center.Y += float64(off.Y)
	for i, pt := range points {
		info.Points[i] = pt.Add(off)
	}
	if s.HasCentroid {
		info.Centroid = &PointF{X: s.CX + float64(off.X), Y: s.CY + float64(off.Y)}
	}
	return info
}

func toFrameROI(r image.Rectangle, region imaging.ROI) imaging.ROI {
	return imaging.ROI{X: r.Min.X + region.X, Y: r.Min.Y + region.Y, Width: r.Dx(), Height: r.Dy()}
}

// Overlay converts the analysis into an annotation overlay.
func (a *Analysis) Overlay() imaging.Overlay {
	ov := imaging.Overlay{
		Region:     a.Region.Rect(),
		SteadyZone: a.SteadyZone.Rect(),
		Label:      fmt.Sprintf("%s %.0f%%", a.Result.Direction, a.Result.Confidence),
	}
	if c := a.Contour; c != nil {
		ov.Box = c.Box.Rect()
		ov.Contour = c.Points
		if c.Centroid != nil {
			pt := image.Pt(int(math.Round(c.Centroid.X)), int(math.Round(c.Centroid.Y)))
			ov.Centroid = &pt
		}
	}
	return ov
}
