// Package detection decides, for one camera frame, whether a strip of colored
// floor tape is to the left, to the right, or straight ahead.
//
// A frame flows through these stages, each a plain function or small type that
// can be tested on its own:
//
//  1. Region: the optional ROI is clamped to the frame and cropped (imaging.CropRegion)
//  2. Segmentation: pixels inside one of two HSV ranges become tape (Segmenter)
//  3. Cleanup: morphological opening then closing with a square kernel (Clean)
//  4. Contours: external contours of 8-connected components (FindContours)
//  5. Shape: moments, centroid, bounding box and minimum-area rectangle (AnalyzeShape)
//  6. Decision: a Decider maps the shape to Left, Right or Steady
//
// # Coordinate System
//
// Stages 2 to 6 work in working-region coordinates: origin at the region's
// top-left corner, X rightward, Y downward, rectangles with exclusive max
// corners. Analysis reports everything back in frame coordinates.
//
// # Outcomes
//
// NoTape is a normal result, returned when nothing of the tape color survives the
// area floor. DetectionError is returned, never a panic, when the frame is
// unusable (ErrInvalidInput) or a stage fails (ErrComputation).
//
// # Deciders
//
// "mass-exit" (default) fuses three signals in [-1, 1]: the centroid's offset
// from the centerline, the left/right split of the contour's pixel mass, and how
// far the bounding box runs out of the region's sides. A box entirely inside the
// steady zone (the middle 60% by default) is Steady outright.
//
// "tilt-offset" steers by the tilt of the minimum-area rectangle, or by the
// centroid offset when the line is nearly upright.
//
// # Backends
//
// Pipeline is pure Go. OpenCVDetector runs the same stages with gocv and is
// only compiled with the gocv build tag.
//
// # Memory
//
// Masks come from a shared buffer pool. Whichever stage creates a mask releases
// it with a deferred Release, so every exit path, including recovered panics,
// returns the buffers.
package detection
