package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/tape-guide-mcp/internal/config"
	"github.com/ironsheep/tape-guide-mcp/internal/detection"
)

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	if err := os.WriteFile(src, []byte("detection:\n  decider: tilt-offset\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	out := filepath.Join(dir, "out.yaml")

	if err := writeConfig(src, out); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	cfg, err := config.Load(out)
	if err != nil {
		t.Fatalf("Load of written config failed: %v", err)
	}
	if cfg.Detection.Decider != detection.DeciderTiltOffset {
		t.Errorf("decider = %q, want tilt-offset", cfg.Detection.Decider)
	}
	if cfg.Detection.Morphology != detection.DefaultConfig().Morphology {
		t.Error("defaults should be written out too")
	}
}

func TestWriteConfig_InvalidSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	if err := os.WriteFile(src, []byte("backend: cuda\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := writeConfig(src, filepath.Join(dir, "out.yaml")); err == nil {
		t.Error("expected error for invalid config")
	}
}
