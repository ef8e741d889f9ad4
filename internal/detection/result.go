package detection

import (
	"errors"
	"fmt"
)

// Direction is the steering decision produced for one frame.
type Direction int

const (
	// NoTape means no contour survived the mask and area filters. It is a normal
	// outcome, not an error.
	NoTape Direction = iota
	// Left means the camera should move left to stay on the tape.
	Left
	// Right means the camera should move right to stay on the tape.
	Right
	// Steady means the tape is where it should be; no correction needed.
	Steady
	// DetectionError means the frame could not be analyzed. The caller may simply
	// retry with the next frame.
	DetectionError
)

var directionNames = [...]string{
	NoTape:         "NoTape",
	Left:           "Left",
	Right:          "Right",
	Steady:         "Steady",
	DetectionError: "DetectionError",
}

// String returns the wire name of the direction.
func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// MarshalText encodes the direction as its wire name.
func (d Direction) MarshalText() ([]byte, error) {
	if d < 0 || int(d) >= len(directionNames) {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(directionNames[d]), nil
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (d *Direction) UnmarshalText(text []byte) error {
	for i, name := range directionNames {
		if name == string(text) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", text)
}

var (
	// ErrInvalidInput marks a frame that cannot be analyzed at all (nil, zero
	// sized, or an image.Image that fails when its bounds are read).
	ErrInvalidInput = errors.New("invalid input frame")

	// ErrComputation marks an unexpected failure inside segmentation, contour
	// extraction, or the decision stage.
	ErrComputation = errors.New("detection computation failed")

	// ErrBackendUnavailable is returned when the requested backend was not
	// compiled into the binary.
	ErrBackendUnavailable = errors.New("detection backend unavailable")
)

// Result is the outcome of one detection call.
//
// Confidence is always within [0, 100] and is 0 for NoTape and DetectionError.
// Err is set only for DetectionError and wraps ErrInvalidInput or ErrComputation.
type Result struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Err        error     `json:"-"`
}

func noTape() Result {
	return Result{Direction: NoTape}
}

func errorResult(err error) Result {
	return Result{Direction: DetectionError, Err: err}
}
