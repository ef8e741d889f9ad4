package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// createTestImage creates a simple test image file and returns its path.
// The caller is responsible for removing the file.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := createInMemoryImage(width, height, c)

	tmpFile, err := os.CreateTemp("", "test-frame-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer tmpFile.Close()

	if err := png.Encode(tmpFile, img); err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to encode image: %v", err)
	}

	return tmpFile.Name()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func TestNewImageCache(t *testing.T) {
	cache := NewImageCache()
	if cache == nil {
		t.Fatal("NewImageCache returned nil")
	}
	if cache.images == nil {
		t.Fatal("NewImageCache did not initialize images map")
	}
}

func TestImageCache_Load(t *testing.T) {
	cache := NewImageCache()
	imgPath := createTestImage(t, 100, 100, color.RGBA{255, 255, 0, 255})
	defer os.Remove(imgPath)

	img1, err := cache.Load(imgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bounds := img1.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Errorf("unexpected dimensions: got %dx%d, want 100x100", bounds.Dx(), bounds.Dy())
	}

	// Second load should return cached image
	img2, err := cache.Load(imgPath)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if img1 != img2 {
		t.Error("second Load did not return cached image")
	}
}

func TestImageCache_Load_FileChanged(t *testing.T) {
	cache := NewImageCache()
	path := filepath.Join(t.TempDir(), "frame.png")

	if err := os.WriteFile(path, encodePNG(t, createInMemoryImage(20, 20, color.Black)), 0o644); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
	if _, err := cache.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Overwrite in place, as a capture loop does, and move the mtime forward.
	if err := os.WriteFile(path, encodePNG(t, createInMemoryImage(30, 10, color.White)), 0o644); err != nil {
		t.Fatalf("failed to overwrite frame: %v", err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	img, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load after overwrite failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 10 {
		t.Errorf("got stale frame %v, want 30x10", b)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := cache.Load(path); err == nil {
		t.Error("expected error after the file was removed")
	}
	if cache.Len() != 0 {
		t.Errorf("removed file should be evicted, Len = %d", cache.Len())
	}
}

func TestImageCache_Load_NonExistent(t *testing.T) {
	cache := NewImageCache()
	_, err := cache.Load("/nonexistent/path/to/frame.png")
	if err == nil {
		t.Fatal("Load should fail for non-existent file")
	}
	if errors.Is(err, ErrUndecodable) {
		t.Error("missing file should not be reported as undecodable")
	}
}

func TestImageCache_Load_InvalidImage(t *testing.T) {
	cache := NewImageCache()

	tmpFile, err := os.CreateTemp("", "invalid-frame-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.WriteString("not an image")
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	_, err = cache.Load(tmpFile.Name())
	if !errors.Is(err, ErrUndecodable) {
		t.Errorf("Load error: got %v, want ErrUndecodable", err)
	}
}

func TestImageCache_ClearAndEvict(t *testing.T) {
	cache := NewImageCache()
	pathA := createTestImage(t, 20, 20, color.RGBA{0, 255, 0, 255})
	pathB := createTestImage(t, 20, 20, color.RGBA{0, 0, 255, 255})
	defer os.Remove(pathA)
	defer os.Remove(pathB)

	for _, p := range []string{pathA, pathB} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}

	cache.Evict(pathA)
	cache.mu.RLock()
	_, hasA := cache.images[pathA]
	_, hasB := cache.images[pathB]
	cache.mu.RUnlock()
	if hasA || !hasB {
		t.Errorf("after Evict: hasA=%v hasB=%v, want false/true", hasA, hasB)
	}

	cache.Evict("/nonexistent/path")

	if cache.Len() != 1 {
		t.Errorf("Len after Evict: got %d, want 1", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear did not empty cache: %d images remain", cache.Len())
	}
}

func TestLoadFrame(t *testing.T) {
	path := createTestImage(t, 12, 8, color.RGBA{255, 255, 0, 255})
	defer os.Remove(path)

	img, err := LoadFrame(path)
	if err != nil {
		t.Fatalf("LoadFrame failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 8 {
		t.Errorf("bounds: got %v, want 12x8", b)
	}

	if _, err := LoadFrame("/nonexistent/frame.png"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	cache := NewImageCache()
	imgPath := createTestImage(t, 50, 50, color.RGBA{128, 128, 128, 255})
	defer os.Remove(imgPath)

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(imgPath); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	data := encodePNG(t, createInMemoryImage(40, 30, color.RGBA{255, 255, 0, 255}))

	img, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("dimensions: got %v, want 40x30", img.Bounds())
	}
}

func TestDecodeFrame_Undecodable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"garbage", []byte("definitely not a png")},
		{"truncated png", encodePNG(t, createInMemoryImage(10, 10, color.Black))[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.data)
			if !errors.Is(err, ErrUndecodable) {
				t.Errorf("got %v, want ErrUndecodable", err)
			}
		})
	}
}

func TestDecodeFrameBase64(t *testing.T) {
	data := encodePNG(t, createInMemoryImage(12, 12, color.White))

	if _, err := DecodeFrameBase64(base64.StdEncoding.EncodeToString(data)); err != nil {
		t.Fatalf("DecodeFrameBase64 failed: %v", err)
	}

	if _, err := DecodeFrameBase64("%%%not-base64%%%"); !errors.Is(err, ErrUndecodable) {
		t.Errorf("bad base64: got %v, want ErrUndecodable", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	cache := NewImageCache()
	imgPath := createTestImage(t, 200, 150, color.RGBA{255, 128, 64, 255})
	defer os.Remove(imgPath)

	info, err := LoadImageInfo(cache, imgPath)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}

	if info.Width != 200 || info.Height != 150 {
		t.Errorf("dimensions: got %dx%d, want 200x150", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}
	if info.ColorModel == "" {
		t.Error("ColorModel should not be empty")
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}
}

func TestLoadImageInfo_FormatDetection(t *testing.T) {
	tests := []struct {
		ext    string
		format string
	}{
		{".png", "png"},
		{".jpg", "jpeg"},
		{".jpeg", "jpeg"},
		{".gif", "gif"},
		{".xyz", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			cache := NewImageCache()
			tmpPath := filepath.Join(t.TempDir(), "frame"+tt.ext)

			// A valid PNG regardless of extension
			if err := os.WriteFile(tmpPath, encodePNG(t, image.NewRGBA(image.Rect(0, 0, 10, 10))), 0o644); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}

			info, err := LoadImageInfo(cache, tmpPath)
			if err != nil {
				t.Fatalf("LoadImageInfo failed: %v", err)
			}
			if info.Format != tt.format {
				t.Errorf("Format for %s: got %s, want %s", tt.ext, info.Format, tt.format)
			}
		})
	}
}

func TestLoadImageInfo_NonExistent(t *testing.T) {
	cache := NewImageCache()
	if _, err := LoadImageInfo(cache, "/nonexistent/frame.png"); err == nil {
		t.Error("LoadImageInfo should fail for non-existent file")
	}
}
