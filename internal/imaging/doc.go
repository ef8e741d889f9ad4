// Package imaging provides the frame-level image operations used around the tape
// detection pipeline.
//
// This package covers everything that touches a whole frame rather than a binary
// mask: decoding and caching frames, clamping a region of interest to the frame
// bounds and cropping it, sampling colors (including the HSV values used to tune
// segmentation ranges), and drawing diagnostic overlays. All operations work with
// standard Go image.Image types and use a coordinate system where (0,0) is at the
// top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - A ROI is {X, Y, Width, Height}; the covered pixels are X..X+Width-1 and Y..Y+Height-1
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. All other functions are
// stateless and never mutate their input frame, so they can be called concurrently
// on the same or different frames.
//
// # Color Representation
//
// Colors are returned in multiple formats:
//   - Hex: 6-character format "#RRGGBB" (alpha excluded)
//   - RGB: 8-bit components (0-255)
//   - HSL: Hue (0-360), Saturation (0-100), Lightness (0-100)
//   - HSV: OpenCV 8-bit convention, Hue (0-179), Saturation (0-255), Value (0-255)
//
// # Error Handling
//
// Frames that cannot be decoded produce an error wrapping ErrUndecodable so that
// callers can tell a broken input apart from a frame that simply has no tape in it.
// ROI problems are never errors: ClampROI always falls back to the full frame.
package imaging
