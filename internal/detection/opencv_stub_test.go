//go:build !gocv

package detection

import (
	"errors"
	"testing"
)

func TestOpenCVBackendUnavailable(t *testing.T) {
	if _, err := NewOpenCVDetector(DefaultConfig()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("NewOpenCVDetector err = %v, want ErrBackendUnavailable", err)
	}
	if _, err := NewBackend(BackendOpenCV, DefaultConfig()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("NewBackend err = %v, want ErrBackendUnavailable", err)
	}

	var d OpenCVDetector
	if res := d.Detect(nil, nil); res.Direction != DetectionError {
		t.Errorf("Detect = %v, want DetectionError", res.Direction)
	}
}
