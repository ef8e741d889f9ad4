package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/tape-guide-mcp/internal/detection"
	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "tape_detect", "image_load").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Frame inspection
	case "image_load":
		return s.handleImageLoad(args)
	case "image_sample_color":
		return s.handleImageSampleColor(args)

	// Tape detection
	case "tape_detect":
		return s.handleTapeDetect(args)
	case "tape_analyze":
		return s.handleTapeAnalyze(args)
	case "tape_detect_batch":
		return s.handleTapeDetectBatch(ctx, args)
	case "tape_mask":
		return s.handleTapeMask(args)
	case "tape_annotate":
		return s.handleTapeAnnotate(args)
	case "tape_clamp_roi":
		return s.handleTapeClampROI(args)

	// Diagnostics
	case "tape_runtime_stats":
		return s.handleRuntimeStats()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Frame Inspection Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type imageSampleColorArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (s *Server) handleImageSampleColor(args json.RawMessage) (interface{}, error) {
	var a imageSampleColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, a.X, a.Y)
}

// === Tape Detection Handlers ===

// frameArgs selects a frame by file path or inline base64 payload, plus an
// optional region of interest.
type frameArgs struct {
	Path        string       `json:"path,omitempty"`
	ImageBase64 string       `json:"image_base64,omitempty"`
	ROI         *imaging.ROI `json:"roi,omitempty"`
}

// loadFrame reads path frames fresh on every call; they are never cached.
func (s *Server) loadFrame(a frameArgs) (image.Image, error) {
	switch {
	case a.Path != "":
		return imaging.LoadFrame(a.Path)
	case a.ImageBase64 != "":
		return imaging.DecodeFrameBase64(a.ImageBase64)
	default:
		return nil, errors.New("either path or image_base64 is required")
	}
}

// detectResponse is the JSON form of a detection result. Error is set only for
// DetectionError.
type detectResponse struct {
	Direction  detection.Direction `json:"direction"`
	Confidence float64             `json:"confidence"`
	Error      string              `json:"error,omitempty"`
}

func newDetectResponse(r detection.Result) detectResponse {
	resp := detectResponse{Direction: r.Direction, Confidence: r.Confidence}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

func (s *Server) handleTapeDetect(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a)
	if err != nil {
		return nil, err
	}
	return newDetectResponse(s.detector.Detect(frame, a.ROI)), nil
}

func (s *Server) handleTapeAnalyze(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a)
	if err != nil {
		return nil, err
	}
	return s.detector.Analyze(frame, a.ROI), nil
}

type tapeDetectBatchArgs struct {
	Paths []string     `json:"paths"`
	ROI   *imaging.ROI `json:"roi,omitempty"`
}

type batchItem struct {
	Path string `json:"path"`
	detectResponse
}

type batchResult struct {
	Count   int            `json:"count"`
	Results []batchItem    `json:"results"`
	Summary map[string]int `json:"summary"`
	Workers int            `json:"workers"`
}

// handleTapeDetectBatch analyzes several frame files concurrently. Frames are
// decoded without caching; a frame that fails to load is reported as a
// DetectionError item and does not fail the batch.
func (s *Server) handleTapeDetectBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a tapeDetectBatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("paths must not be empty")
	}

	items := make([]batchItem, len(a.Paths))
	workers := min(s.batchWorkers, len(a.Paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range a.Paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i].Path = path
			frame, err := imaging.LoadFrame(path)
			if err != nil {
				items[i].Direction = detection.DetectionError
				items[i].Error = err.Error()
				return nil
			}
			items[i].detectResponse = newDetectResponse(s.detector.Detect(frame, a.ROI))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	summary := make(map[string]int)
	for _, it := range items {
		summary[it.Direction.String()]++
	}
	return &batchResult{Count: len(items), Results: items, Summary: summary, Workers: workers}, nil
}

type tapeMaskResult struct {
	Region      imaging.ROI `json:"region"`
	ROIApplied  bool        `json:"roi_applied"`
	Pixels      int         `json:"pixels"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	ImageBase64 string      `json:"image_base64"`
	MimeType    string      `json:"mime_type"`
}

func (s *Server) handleTapeMask(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a)
	if err != nil {
		return nil, err
	}

	out, err := s.detector.Mask(frame, a.ROI)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNGBase64(out.Image)
	if err != nil {
		return nil, err
	}
	b := out.Image.Bounds()
	return &tapeMaskResult{
		Region:      out.Region,
		ROIApplied:  out.ROIApplied,
		Pixels:      out.Pixels,
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

type tapeAnnotateArgs struct {
	frameArgs
	BoxColor string `json:"box_color,omitempty"`
}

type tapeAnnotateResult struct {
	Result detectResponse `json:"result"`
	*imaging.AnnotateResult
}

func (s *Server) handleTapeAnnotate(args json.RawMessage) (interface{}, error) {
	var a tapeAnnotateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a.frameArgs)
	if err != nil {
		return nil, err
	}

	analysis := s.detector.Analyze(frame, a.ROI)
	ov := analysis.Overlay()
	ov.BoxColor = a.BoxColor

	annotated, err := imaging.Annotate(frame, ov)
	if err != nil {
		return nil, err
	}
	return &tapeAnnotateResult{Result: newDetectResponse(analysis.Result), AnnotateResult: annotated}, nil
}

type tapeClampROIArgs struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	ROI     *imaging.ROI `json:"roi,omitempty"`
	MinSize *int         `json:"min_size,omitempty"`
}

type tapeClampROIResult struct {
	Region  imaging.ROI `json:"region"`
	Applied bool        `json:"applied"`
}

func (s *Server) handleTapeClampROI(args json.RawMessage) (interface{}, error) {
	var a tapeClampROIArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Width <= 0 || a.Height <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", a.Width, a.Height)
	}
	minSize := s.minROISize
	if a.MinSize != nil {
		minSize = *a.MinSize
	}
	region, applied := imaging.ClampROI(a.Width, a.Height, a.ROI, minSize)
	return &tapeClampROIResult{Region: region, Applied: applied}, nil
}

// === Diagnostics ===

type runtimeStats struct {
	Backend        string  `json:"backend"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapObjects    uint64  `json:"heap_objects"`
	NumGC          uint32  `json:"num_gc"`
	CachedFrames   int     `json:"cached_frames"`
	RSSBytes       uint64  `json:"rss_bytes,omitempty"`
	VMSBytes       uint64  `json:"vms_bytes,omitempty"`
	NumThreads     int32   `json:"num_threads,omitempty"`
	CPUPercent     float64 `json:"cpu_percent,omitempty"`
	ProcessError   string  `json:"process_error,omitempty"`
}

// handleRuntimeStats reports Go runtime and OS process figures so a capture
// loop can watch memory stay flat across many frames.
func (s *Server) handleRuntimeStats() (interface{}, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := &runtimeStats{
		Backend:        s.detector.Name(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapObjects:    ms.HeapObjects,
		NumGC:          ms.NumGC,
		CachedFrames:   s.cache.Len(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		stats.ProcessError = err.Error()
		return stats, nil
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
		stats.VMSBytes = mem.VMS
	} else {
		stats.ProcessError = err.Error()
	}
	if n, err := proc.NumThreads(); err == nil {
		stats.NumThreads = n
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}
