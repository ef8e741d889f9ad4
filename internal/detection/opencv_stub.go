//go:build !gocv

package detection

import (
	"fmt"
	"image"

	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// OpenCVDetector is unavailable in builds without the gocv tag.
type OpenCVDetector struct{}

// NewOpenCVDetector reports ErrBackendUnavailable. Rebuild with -tags gocv to
// enable the OpenCV backend.
func NewOpenCVDetector(Config, ...Option) (*OpenCVDetector, error) {
	return nil, fmt.Errorf("%w: %s (build with -tags gocv)", ErrBackendUnavailable, BackendOpenCV)
}

// Name returns BackendOpenCV.
func (d *OpenCVDetector) Name() string { return BackendOpenCV }

// Detect always reports a DetectionError.
func (d *OpenCVDetector) Detect(image.Image, *imaging.ROI) Result {
	return errorResult(ErrBackendUnavailable)
}

// Analyze always reports a DetectionError.
func (d *OpenCVDetector) Analyze(image.Image, *imaging.ROI) *Analysis {
	a := &Analysis{Backend: BackendOpenCV}
	a.fail(ErrBackendUnavailable)
	return a
}

// Mask always returns ErrBackendUnavailable.
func (d *OpenCVDetector) Mask(image.Image, *imaging.ROI) (*MaskOutput, error) {
	return nil, ErrBackendUnavailable
}
