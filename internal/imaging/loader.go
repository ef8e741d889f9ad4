package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrUndecodable is wrapped by every error caused by frame bytes that are not a
// supported image (PNG, JPEG, GIF).
var ErrUndecodable = errors.New("undecodable image")

// ImageCache provides thread-safe caching of decoded frames keyed by file path.
//
// The same capture file is commonly inspected several times (load, then sample
// colors at a few points). Caching the decoded image avoids paying for the decode
// on every tool call.
//
// An entry is only reused while the file's size and modification time are
// unchanged, so a capture loop that overwrites the same file always gets the new
// frame. Entries remain in memory until Evict() or Clear().
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]cachedFrame
}

type cachedFrame struct {
	img     image.Image
	size    int64
	modTime time.Time
}

func (f cachedFrame) matches(info os.FileInfo) bool {
	return f.size == info.Size() && f.modTime.Equal(info.ModTime())
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]cachedFrame),
	}
}

// Load retrieves a frame from the cache, or decodes it from disk if it is not
// cached or the file changed since it was cached.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns an error wrapping ErrUndecodable if the file is not a valid PNG, JPEG, or GIF
func (c *ImageCache) Load(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.Evict(path)
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	c.mu.RLock()
	f, ok := c.images[path]
	c.mu.RUnlock()
	if ok && f.matches(info) {
		return f.img, nil
	}

	img, err := LoadFrame(path)
	if err != nil {
		c.Evict(path)
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = cachedFrame{img: img, size: info.Size(), modTime: info.ModTime()}
	c.mu.Unlock()

	return img, nil
}

// Clear removes all frames from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cachedFrame)
	c.mu.Unlock()
}

// Len returns the number of cached frames.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Evict removes a specific frame from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// LoadFrame reads and decodes a frame file without caching it.
func LoadFrame(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return DecodeFrame(data)
}

// DecodeFrame decodes an encoded frame (PNG, JPEG or GIF) into an image.Image.
//
// Empty input, unknown formats and corrupt data all return an error wrapping
// ErrUndecodable. A decoded frame with zero width or height is rejected the same
// way because no detection can run on it.
func DecodeFrame(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: %w: empty input", ErrUndecodable)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w: %v", ErrUndecodable, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("failed to decode image: %w: zero-sized frame", ErrUndecodable)
	}

	return img, nil
}

// DecodeFrameBase64 decodes a base64 (standard encoding) frame payload.
func DecodeFrameBase64(s string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 frame: %w: %v", ErrUndecodable, err)
	}
	return DecodeFrame(data)
}

// ImageInfo contains metadata about a loaded frame file.
type ImageInfo struct {
	// Width is the frame width in pixels.
	Width int `json:"width"`

	// Height is the frame height in pixels.
	Height int `json:"height"`

	// Format is the detected image format: "png", "jpeg", "gif", or "unknown".
	// Detection is based on file extension, not file contents.
	Format string `json:"format"`

	// ColorModel names the decoded pixel layout, e.g. "rgba", "nrgba", "ycbcr".
	ColorModel string `json:"color_model"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads a frame into the cache and returns its metadata.
//
// The color model is reported because segmentation reads *image.NRGBA and
// *image.RGBA buffers directly and converts everything else first, which matters
// when profiling a capture source that produces JPEG (YCbCr) frames.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch filepath.Ext(path) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		ColorModel:    colorModelName(img),
		FileSizeBytes: stat.Size(),
	}, nil
}

func colorModelName(img image.Image) string {
	switch img.(type) {
	case *image.RGBA:
		return "rgba"
	case *image.NRGBA:
		return "nrgba"
	case *image.RGBA64, *image.NRGBA64:
		return "rgba64"
	case *image.YCbCr:
		return "ycbcr"
	case *image.Paletted:
		return "paletted"
	case *image.Gray, *image.Gray16:
		return "gray"
	default:
		return "other"
	}
}
