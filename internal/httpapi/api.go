// Package httpapi serves tape detection over HTTP for callers that are not MCP
// clients, such as a robot controller posting camera frames.
//
// Routes:
//
//	POST /v1/detect    frame in, {"direction", "confidence"} out
//	POST /v1/analyze   frame in, full detection.Analysis out
//	GET  /healthz      backend name and version
//
// A frame is either the raw encoded image as the request body, or a JSON body
// {"image_base64": "...", "roi": {...}} when Content-Type is application/json.
// The ROI may also be given as x, y, width and height query parameters.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ironsheep/tape-guide-mcp/internal/detection"
	"github.com/ironsheep/tape-guide-mcp/internal/imaging"
)

// defaultMaxBodyBytes applies until WithMaxBodyBytes sets the configured limit.
const defaultMaxBodyBytes = 32 << 20

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidImage   = "invalid_image"
	CodeBodyTooLarge   = "body_too_large"
)

// DetectResponse is the body of a successful /v1/detect call.
type DetectResponse struct {
	Direction  detection.Direction `json:"direction"`
	Confidence float64             `json:"confidence"`
	Error      string              `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Version string `json:"version,omitempty"`
}

type jsonFrame struct {
	ImageBase64 string       `json:"image_base64"`
	ROI         *imaging.ROI `json:"roi,omitempty"`
}

// API holds the HTTP handlers.
type API struct {
	detector     detection.Analyzer
	maxBodyBytes int64
	logger       *slog.Logger
	version      string
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxBodyBytes limits request bodies. Values below 1 keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// New creates an API backed by detector.
func New(detector detection.Analyzer, opts ...Option) *API {
	a := &API{
		detector:     detector,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the router with request logging applied.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/detect", a.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/v1/analyze", a.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Use(a.logRequests)
	return r
}

// NewServer wraps the API in an http.Server listening on addr.
func (a *API) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

func (a *API) handleDetect(w http.ResponseWriter, r *http.Request) {
	frame, roi, ok := a.readFrame(w, r)
	if !ok {
		return
	}
	res := a.detector.Detect(frame, roi)
	resp := DetectResponse{Direction: res.Direction, Confidence: res.Confidence}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	frame, roi, ok := a.readFrame(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.detector.Analyze(frame, roi))
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Backend: a.detector.Name(),
		Version: a.version,
	})
}

// readFrame decodes the frame and ROI from r. On failure it writes the error
// response and returns ok == false.
func (a *API) readFrame(w http.ResponseWriter, r *http.Request) (image.Image, *imaging.ROI, bool) {
	roi, err := roiFromQuery(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid roi query", err)
		return nil, nil, false
	}

	body := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	var frame image.Image

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req jsonFrame
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			a.sendBodyError(w, err)
			return nil, nil, false
		}
		if req.ImageBase64 == "" {
			sendError(w, http.StatusBadRequest, CodeInvalidRequest, "image_base64 is required", nil)
			return nil, nil, false
		}
		if req.ROI != nil {
			roi = req.ROI
		}
		frame, err = imaging.DecodeFrameBase64(req.ImageBase64)
	} else {
		data, readErr := io.ReadAll(body)
		if readErr != nil {
			a.sendBodyError(w, readErr)
			return nil, nil, false
		}
		frame, err = imaging.DecodeFrame(data)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, imaging.ErrUndecodable) {
			status = http.StatusBadRequest
		}
		sendError(w, status, CodeInvalidImage, "failed to decode image", err)
		return nil, nil, false
	}
	return frame, roi, true
}

func (a *API) sendBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		sendError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
		return
	}
	sendError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body", err)
}

// roiFromQuery parses x, y, width and height. All four must be present when any
// of them is.
func roiFromQuery(r *http.Request) (*imaging.ROI, error) {
	q := r.URL.Query()
	keys := [4]string{"x", "y", "width", "height"}

	present := 0
	for _, k := range keys {
		if q.Has(k) {
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
	default:
		return nil, errors.New("x, y, width and height must be given together")
	}

	var vals [4]int
	for i, k := range keys {
		v, err := strconv.Atoi(q.Get(k))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", k, err)
		}
		vals[i] = v
	}
	return &imaging.ROI{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Code: code, Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
