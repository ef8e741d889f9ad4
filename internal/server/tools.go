package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func roiSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x":      map[string]interface{}{"type": "integer"},
			"y":      map[string]interface{}{"type": "integer"},
			"width":  map[string]interface{}{"type": "integer"},
			"height": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"x", "y", "width", "height"},
	}
}

// frameProperties are shared by every tool that analyzes a single frame.
func frameProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the frame file (PNG, JPEG or GIF)",
		},
		"image_base64": map[string]interface{}{
			"type":        "string",
			"description": "Frame bytes as standard base64, used when path is empty",
		},
		"roi": roiSchema("Optional region of interest in frame coordinates. Ignored when smaller than the minimum size or not inside the frame"),
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	annotateProps := frameProperties()
	annotateProps["box_color"] = map[string]interface{}{
		"type":        "string",
		"description": "Contour box color as #RRGGBB or #RRGGBBAA. Default magenta",
	}

	return []Tool{
		// Frame Inspection
		{
			Name:        "image_load",
			Description: "Load a frame file and return its dimensions, format and color model. The frame is cached for later calls by path.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the frame file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_sample_color",
			Description: "Get the color at a pixel as RGB, hex, HSL and OpenCV-scaled HSV. Use it to tune the tape color ranges.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the frame file",
					},
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based)",
					},
				},
				"required": []string{"path", "x", "y"},
			},
		},

		// Tape Detection
		{
			Name:        "tape_detect",
			Description: "Detect the yellow guide tape and return the steering direction (Steady, Left, Right, NoTape or DetectionError) with a 0-100 confidence.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
			},
		},
		{
			Name:        "tape_analyze",
			Description: "Run detection and return the full breakdown: region used, steady zone, mask pixel count, largest contour geometry and decision signals.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
			},
		},
		{
			Name:        "tape_detect_batch",
			Description: "Detect the tape direction in many frame files concurrently. Returns one result per path in input order plus a count per direction.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths to the frame files",
					},
					"roi": roiSchema("Optional region of interest applied to every frame"),
				},
				"required": []string{"paths"},
			},
		},
		{
			Name:        "tape_mask",
			Description: "Return the cleaned binary tape mask for the analyzed region as a base64 PNG (white = tape).",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
			},
		},
		{
			Name:        "tape_annotate",
			Description: "Draw the analyzed region, steady zone, tape contour, bounding box, centroid and decision label over the frame and return it as a base64 PNG.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": annotateProps,
			},
		},
		{
			Name:        "tape_clamp_roi",
			Description: "Show which region detection would analyze for a frame size and optional ROI, without loading a frame.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Frame width in pixels",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Frame height in pixels",
					},
					"roi": roiSchema("Requested region of interest"),
					"min_size": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum ROI width and height. Defaults to the server setting",
					},
				},
				"required": []string{"width", "height"},
			},
		},

		// Diagnostics
		{
			Name:        "tape_runtime_stats",
			Description: "Report the detector backend, Go runtime memory and goroutine counts, process RSS/threads/CPU and the number of cached frames.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
