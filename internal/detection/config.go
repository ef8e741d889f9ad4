package detection

import (
	"fmt"

	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// HSVRange is an inclusive range over the OpenCV 8-bit HSV space
// (H 0-179, S 0-255, V 0-255). See imaging.HSVColor.
type HSVRange struct {
	HMin uint8 `yaml:"h_min" json:"h_min"`
	HMax uint8 `yaml:"h_max" json:"h_max"`
	SMin uint8 `yaml:"s_min" json:"s_min"`
	SMax uint8 `yaml:"s_max" json:"s_max"`
	VMin uint8 `yaml:"v_min" json:"v_min"`
	VMax uint8 `yaml:"v_max" json:"v_max"`
}

// Contains reports whether c lies inside the range on all three channels.
func (r HSVRange) Contains(c imaging.HSVColor) bool {
	return c.H >= r.HMin && c.H <= r.HMax &&
		c.S >= r.SMin && c.S <= r.SMax &&
		c.V >= r.VMin && c.V <= r.VMax
}

// IsZero reports whether the range is unset. A zero secondary range disables it.
func (r HSVRange) IsZero() bool {
	return r == HSVRange{}
}

func (r HSVRange) validate(name string) error {
	if r.HMin > r.HMax || r.SMin > r.SMax || r.VMin > r.VMax {
		return fmt.Errorf("%s range has min above max: %+v", name, r)
	}
	if r.HMax > 179 {
		return fmt.Errorf("%s range hue %d exceeds 179", name, r.HMax)
	}
	return nil
}

// SegmentationConfig holds the color ranges that identify tape pixels.
//
// Core catches well-lit, saturated tape. Secondary catches paler or overexposed
// pixels of the same tape (lower saturation, higher minimum value) and must use
// the same hue band as Core.
type SegmentationConfig struct {
	Core      HSVRange `yaml:"core" json:"core"`
	Secondary HSVRange `yaml:"secondary" json:"secondary"`

	// BlurRadius applies a Gaussian pre-blur to the working region before
	// thresholding. 0 disables it.
	BlurRadius float64 `yaml:"blur_radius" json:"blur_radius"`
}

// MorphologyConfig controls mask cleanup.
type MorphologyConfig struct {
	// KernelSize is the side of the square structuring element.
	KernelSize int `yaml:"kernel_size" json:"kernel_size"`
}

// ContourConfig holds the minimum contour area floors. A tightly cropped ROI
// sees less background noise, so it gets the smaller floor.
type ContourConfig struct {
	MinAreaROI  int `yaml:"min_area_roi" json:"min_area_roi"`
	MinAreaFull int `yaml:"min_area_full" json:"min_area_full"`
}

// Weights are the fusion weights of the mass-exit decider.
type Weights struct {
	Horizontal float64 `yaml:"horizontal" json:"horizontal"`
	Mass       float64 `yaml:"mass" json:"mass"`
	Exit       float64 `yaml:"exit" json:"exit"`
}

// TiltConfig holds the thresholds of the tilt-offset decider.
type TiltConfig struct {
	// AngleDeadband: below this tilt (degrees) the decision falls back to the
	// horizontal offset.
	AngleDeadband float64 `yaml:"angle_deadband" json:"angle_deadband"`
	// AngleThreshold: tilt (degrees) beyond which the line is steered by angle.
	AngleThreshold float64 `yaml:"angle_threshold" json:"angle_threshold"`
	// OffsetThreshold: normalized centroid offset beyond which the line is
	// steered by position.
	OffsetThreshold float64 `yaml:"offset_threshold" json:"offset_threshold"`
}

// DecisionConfig holds the direction decision parameters.
type DecisionConfig struct {
	// ConfidenceScale amplifies the contour/region area ratio into a percentage.
	ConfidenceScale float64 `yaml:"confidence_scale" json:"confidence_scale"`
	// SteadyMargin is the fraction of the region trimmed from each side to form
	// the steady zone.
	SteadyMargin float64 `yaml:"steady_margin" json:"steady_margin"`
	// Threshold is the evidence magnitude needed to steer.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// ExitMargin insets the region's left and right edges, as a fraction of its
	// width, before measuring how far the contour box protrudes past them. The
	// default 0 measures against the literal edges, so a box that stays inside
	// the region has no exit factor.
	ExitMargin float64    `yaml:"exit_margin" json:"exit_margin"`
	Weights    Weights    `yaml:"weights" json:"weights"`
	Tilt       TiltConfig `yaml:"tilt" json:"tilt"`
}

// Config is the full detection configuration shared by all backends.
type Config struct {
	// MinROISize is the smallest usable clamped ROI side; anything at or below it
	// falls back to the full frame.
	MinROISize int `yaml:"min_roi_size" json:"min_roi_size"`

	// Decider selects the direction heuristic: "mass-exit" or "tilt-offset".
	Decider string `yaml:"decider" json:"decider"`

	Segmentation SegmentationConfig `yaml:"segmentation" json:"segmentation"`
	Morphology   MorphologyConfig   `yaml:"morphology" json:"morphology"`
	Contours     ContourConfig      `yaml:"contours" json:"contours"`
	Decision     DecisionConfig     `yaml:"decision" json:"decision"`
}

// DefaultConfig returns the configuration tuned for yellow floor tape.
func DefaultConfig() Config {
	return Config{
		MinROISize: imaging.DefaultMinROISize,
		Decider:    DeciderMassExit,
		Segmentation: SegmentationConfig{
			Core:      HSVRange{HMin: 20, HMax: 35, SMin: 100, SMax: 255, VMin: 100, VMax: 255},
			Secondary: HSVRange{HMin: 20, HMax: 35, SMin: 40, SMax: 255, VMin: 180, VMax: 255},
		},
		Morphology: MorphologyConfig{KernelSize: 5},
		Contours:   ContourConfig{MinAreaROI: 200, MinAreaFull: 300},
		Decision: DecisionConfig{
			ConfidenceScale: 15,
			SteadyMargin:    0.2,
			Threshold:       0.25,
			ExitMargin:      0,
			Weights:         Weights{Horizontal: 0.3, Mass: 0.3, Exit: 0.4},
			Tilt:            TiltConfig{AngleDeadband: 10, AngleThreshold: 15, OffsetThreshold: 0.15},
		},
	}
}

// Validate normalizes out-of-range numeric values to their defaults and
// returns an error for settings that cannot be repaired (inverted color
// ranges, mismatched hue bands, unknown decider).
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.MinROISize < 0 {
		c.MinROISize = def.MinROISize
	}
	if c.Decider == "" {
		c.Decider = def.Decider
	}
	if _, ok := deciderFactories[c.Decider]; !ok {
		return fmt.Errorf("unknown decider %q", c.Decider)
	}

	seg := &c.Segmentation
	if seg.Core.IsZero() {
		seg.Core = def.Segmentation.Core
	}
	if err := seg.Core.validate("core"); err != nil {
		return err
	}
	if !seg.Secondary.IsZero() {
		if err := seg.Secondary.validate("secondary"); err != nil {
			return err
		}
		if seg.Secondary.HMin != seg.Core.HMin || seg.Secondary.HMax != seg.Core.HMax {
			return fmt.Errorf("secondary hue band %d-%d differs from core %d-%d",
				seg.Secondary.HMin, seg.Secondary.HMax, seg.Core.HMin, seg.Core.HMax)
		}
	}
	if seg.BlurRadius < 0 {
		seg.BlurRadius = 0
	}

	if c.Morphology.KernelSize <= 0 {
		c.Morphology.KernelSize = def.Morphology.KernelSize
	}
	if c.Contours.MinAreaROI < 0 {
		c.Contours.MinAreaROI = def.Contours.MinAreaROI
	}
	if c.Contours.MinAreaFull < 0 {
		c.Contours.MinAreaFull = def.Contours.MinAreaFull
	}

	d := &c.Decision
	if d.ConfidenceScale <= 0 {
		d.ConfidenceScale = def.Decision.ConfidenceScale
	}
	if d.SteadyMargin < 0 || d.SteadyMargin >= 0.5 {
		d.SteadyMargin = def.Decision.SteadyMargin
	}
	if d.Threshold <= 0 {
		d.Threshold = def.Decision.Threshold
	}
	if d.ExitMargin < 0 || d.ExitMargin >= 0.5 {
		d.ExitMargin = def.Decision.ExitMargin
	}
	if d.Weights == (Weights{}) {
		d.Weights = def.Decision.Weights
	}
	if d.Tilt.AngleDeadband <= 0 {
		d.Tilt.AngleDeadband = def.Decision.Tilt.AngleDeadband
	}
	if d.Tilt.AngleThreshold <= 0 {
		d.Tilt.AngleThreshold = def.Decision.Tilt.AngleThreshold
	}
	if d.Tilt.OffsetThreshold <= 0 {
		d.Tilt.OffsetThreshold = def.Decision.Tilt.OffsetThreshold
	}
	return nil
}

// minArea returns the contour area floor for the working region.
func (c *Config) minArea(roiApplied bool) int {
	if roiApplied {
		return c.Contours.MinAreaROI
	}
	return c.Contours.MinAreaFull
}
