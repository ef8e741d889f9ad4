package detection

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Decider variants.
const (
	// DeciderMassExit fuses centroid offset, left/right pixel mass and edge exit
	// into one evidence value. It is the default.
	DeciderMassExit = "mass-exit"
	// DeciderTiltOffset steers by the oriented rectangle's tilt, or by centroid
	// offset when the line is close to upright.
	DeciderTiltOffset = "tilt-offset"
)

// Decider maps the selected contour's geometry to a direction.
type Decider interface {
	Name() string
	// Decide returns the decision for shape inside region. Both use the same
	// coordinate space; region is the full working region.
	Decide(shape Shape, region image.Rectangle) Decision
}

// Decision is a decider's result together with the signals it was derived from.
type Decision struct {
	Result  Result
	Signals Signals
}

// Signals are the intermediate values of a decision, exposed for diagnostics.
// Biases are in [-1, 1], negative meaning left.
type Signals struct {
	InSteadyZone   bool    `json:"in_steady_zone"`
	HorizontalBias float64 `json:"horizontal_bias"`
	MassBias       float64 `json:"mass_bias"`
	ExitFactor     float64 `json:"exit_factor"`
	Evidence       float64 `json:"evidence"`
	Angle          float64 `json:"angle"`
}

type deciderFactory func(DecisionConfig) Decider

var deciderFactories = map[string]deciderFactory{
	DeciderMassExit:   func(cfg DecisionConfig) Decider { return &massExitDecider{cfg: cfg} },
	DeciderTiltOffset: func(cfg DecisionConfig) Decider { return &tiltOffsetDecider{cfg: cfg} },
}

// NewDecider returns the named decider variant.
func NewDecider(variant string, cfg DecisionConfig) (Decider, error) {
	f, ok := deciderFactories[variant]
	if !ok {
		return nil, fmt.Errorf("unknown decider %q (available: %v)", variant, Deciders())
	}
	return f(cfg), nil
}

// Deciders lists the registered variant names in sorted order.
func Deciders() []string {
	names := make([]string, 0, len(deciderFactories))
	for name := range deciderFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Confidence converts a contour/region area ratio into a percentage in [0, 100].
func Confidence(area, regionArea int, scale float64) float64 {
	if regionArea <= 0 || area <= 0 {
		return 0
	}
	c := float64(area) / float64(regionArea) * 100 * scale
	return math.Min(100, math.Max(0, c))
}

// SteadyZone returns region shrunk by margin (a fraction of its size) on every
// side.
func SteadyZone(region image.Rectangle, margin float64) image.Rectangle {
	mx := int(math.Ceil(float64(region.Dx())*margin - 1e-9))
	my := int(math.Ceil(float64(region.Dy())*margin - 1e-9))
	return image.Rect(region.Min.X+mx, region.Min.Y+my, region.Max.X-mx, region.Max.Y-my)
}

func centerX(region image.Rectangle) float64 {
	return float64(region.Min.X) + float64(region.Dx())/2
}

// offset is the centroid's signed distance from the region's vertical
// centerline, normalized by the half width.
func offset(cx float64, region image.Rectangle) float64 {
	c := centerX(region)
	half := float64(region.Dx()) / 2
	if half == 0 {
		return 0
	}
	return clampUnit((cx - c) / half)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func steer(v, threshold float64) Direction {
	switch {
	case v > threshold:
		return Right
	case v < -threshold:
		return Left
	default:
		return Steady
	}
}

type massExitDecider struct {
	cfg DecisionConfig
}

func (d *massExitDecider) Name() string { return DeciderMassExit }

func (d *massExitDecider) Decide(s Shape, region image.Rectangle) Decision {
	conf := Confidence(s.Area, region.Dx()*region.Dy(), d.cfg.ConfidenceScale)
	out := Decision{
		Result:  Result{Direction: Steady, Confidence: conf},
		Signals: Signals{Angle: s.Oriented.Angle},
	}

	if s.Box.In(SteadyZone(region, d.cfg.SteadyMargin)) {
		out.Signals.InSteadyZone = true
		return out
	}
	if !s.HasCentroid {
		return out
	}

	sig := &out.Signals
	sig.HorizontalBias = offset(s.CX, region)
	sig.MassBias = massBias(s, region)
	sig.ExitFactor = exitFactor(s.Box, region, d.cfg.ExitMargin)

	w := d.cfg.Weights
	sig.Evidence = w.Horizontal*sig.HorizontalBias + w.Mass*sig.MassBias + w.Exit*sig.ExitFactor
	out.Result.Direction = steer(sig.Evidence, d.cfg.Threshold)
	return out
}

// massBias compares the region's pixel mass right and left of the centerline.
func massBias(s Shape, region image.Rectangle) float64 {
	split := int(math.Ceil(centerX(region)))
	switch {
	case s.Box.Max.X <= split:
		return -1
	case s.Box.Min.X >= split:
		return 1
	case s.Mass == nil:
		return 0
	}
	left, right := s.Mass.SplitAt(split)
	if left+right == 0 {
		return 0
	}
	return float64(right-left) / float64(right+left)
}

// exitFactor measures how far box sticks out past the region's left and right
// edges, each inset by margin*width, as a fraction of the box width.
func exitFactor(box, region image.Rectangle, margin float64) float64 {
	if box.Dx() <= 0 {
		return 0
	}
	inset := float64(region.Dx()) * margin
	leftEdge := float64(region.Min.X) + inset
	rightEdge := float64(region.Max.X) - inset

	leftOut := math.Max(0, leftEdge-float64(box.Min.X))
	rightOut := math.Max(0, float64(box.Max.X)-rightEdge)
	return clampUnit((rightOut - leftOut) / float64(box.Dx()))
}

type tiltOffsetDecider struct {
	cfg DecisionConfig
}

func (d *tiltOffsetDecider) Name() string { return DeciderTiltOffset }

func (d *tiltOffsetDecider) Decide(s Shape, region image.Rectangle) Decision {
	conf := Confidence(s.Area, region.Dx()*region.Dy(), d.cfg.ConfidenceScale)
	out := Decision{
		Result:  Result{Direction: Steady, Confidence: conf},
		Signals: Signals{Angle: s.Oriented.Angle},
	}
	if !s.HasCentroid {
		return out
	}

	t := d.cfg.Tilt
	out.Signals.HorizontalBias = offset(s.CX, region)
	if math.Abs(s.Oriented.Angle) < t.AngleDeadband {
		out.Signals.Evidence = out.Signals.HorizontalBias
		out.Result.Direction = steer(out.Signals.HorizontalBias, t.OffsetThreshold)
		return out
	}
	out.Signals.Evidence = s.Oriented.Angle
	out.Result.Direction = steer(s.Oriented.Angle, t.AngleThreshold)
	return out
}
