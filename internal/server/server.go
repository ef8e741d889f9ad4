package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/ironsheep/tape-guide-mcp/internal/detection"
	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// Server handles MCP protocol communication
type Server struct {
	cache        *imaging.ImageCache
	detector     detection.Analyzer
	batchWorkers int
	minROISize   int
	logger       *slog.Logger
	version      string
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Records go wherever the handler writes;
// stdout is reserved for the protocol.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBatchWorkers bounds the number of frames tape_detect_batch analyzes at
// once. Values below 1 mean one per CPU.
func WithBatchWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithMinROISize sets the minimum ROI side used by tape_clamp_roi when the
// caller does not pass one.
func WithMinROISize(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.minROISize = n
		}
	}
}

// WithVersion sets the version reported by initialize.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// New creates a new MCP server instance backed by detector.
func New(detector detection.Analyzer, opts ...Option) *Server {
	s := &Server{
		cache:        imaging.NewImageCache(),
		detector:     detector,
		batchWorkers: runtime.NumCPU(),
		minROISize:   imaging.DefaultMinROISize,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		version:      "0.1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves MCP on stdin/stdout until stdin closes or ctx is cancelled.
// Cancellation returns ctx.Err() without waiting for stdin.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to w.
// It returns when r is exhausted or as soon as ctx is cancelled, even while a
// read on r is still blocked.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines, done := readLines(ctx, r)
	encoder := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := <-done; err != nil && !errors.Is(err, ctx.Err()) {
					return fmt.Errorf("scanner error: %w", err)
				}
				return ctx.Err()
			}
			line = l
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", "error", err)
			if err := encoder.Encode(s.errorResponse(nil, -32700, "Parse error", err.Error())); err != nil {
				s.logger.Error("failed to encode response", "error", err)
			}
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to encode response", "error", err)
			}
		}
	}
}

// readLines scans non-empty lines from r on its own goroutine. lines is closed
// when scanning stops; done then yields the scanner error, or ctx's error if
// the reader was abandoned.
func readLines(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	done := make(chan error, 1)

	go func() {
		var err error
		defer func() {
			done <- err
			close(lines)
		}()

		scanner := bufio.NewScanner(r)
		// Frames may arrive inline as base64, so allow large lines.
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				err = ctx.Err()
				return
			}
		}
		err = scanner.Err()
	}()

	return lines, done
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	s.logger.Debug("request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "tape-guide-mcp",
				"version": s.version,
			},
		},
	}
}
