// Package server implements the MCP (Model Context Protocol) server for the
// tape-following detector.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line on stdin and
// one response per line on stdout. Logs never go to stdout.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Frame inspection:
//   - image_load: Load a frame and get metadata
//   - image_sample_color: Color at a pixel, including OpenCV-scaled HSV
//
// Tape detection:
//   - tape_detect: Direction and confidence
//   - tape_analyze: Direction plus region, contour geometry and decision signals
//   - tape_detect_batch: Many frame files on a bounded worker pool
//   - tape_mask: Cleaned binary mask as PNG
//   - tape_annotate: Frame with the detection drawn on it
//   - tape_clamp_roi: Region selection without a frame
//
// Diagnostics:
//   - tape_runtime_stats: Runtime and process memory figures
//
// Detection tools take a frame by path or inline as base64 and decode it on
// every call. image_load and image_sample_color share a cache keyed by path that
// is refreshed whenever the file's size or modification time changes.
//
// # Error Handling
//
// A frame that cannot be analyzed is not a protocol error: detection tools
// return direction DetectionError with an error string. Bad arguments and unreadable
// files are returned as JSON-RPC errors with code -32000.
//
// # Usage
//
//	det, _ := detection.NewPipeline(detection.DefaultConfig())
//	srv := server.New(det, server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
