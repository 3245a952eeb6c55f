package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Crossfade != DefaultCrossfade {
		t.Errorf("Expected crossfade %v, got %v", DefaultCrossfade, cfg.Crossfade)
	}
	if cfg.CaptureFPS != 30 {
		t.Errorf("Expected capture fps 30, got %d", cfg.CaptureFPS)
	}
	if cfg.ImageDuration.Max != 4.0 || cfg.ImageDuration.Min != 0.05 {
		t.Errorf("Unexpected image duration bounds: %+v", cfg.ImageDuration)
	}
}

func TestLoadYAMLAndClamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desktopdoc.yaml")
	data := []byte("resolution: 1080x1920\ncrossfade: 7.5\ntitle: Release notes\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Resolution != "1080x1920" {
		t.Errorf("Expected resolution 1080x1920, got %s", cfg.Resolution)
	}
	if cfg.Crossfade != MaxCrossfade {
		t.Errorf("Expected crossfade clamped to %v, got %v", MaxCrossfade, cfg.Crossfade)
	}
	if cfg.Title != "Release notes" {
		t.Errorf("Expected title from file, got %q", cfg.Title)
	}
}

func TestLoadNaNCrossfade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desktopdoc.yaml")
	if err := os.WriteFile(path, []byte("crossfade: .nan\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Crossfade != DefaultCrossfade {
		t.Errorf("Expected NaN crossfade to fall back to %v, got %v", DefaultCrossfade, cfg.Crossfade)
	}

	t.Setenv("DESKTOPDOC_CROSSFADE", "NaN")
	if _, err := Load(""); err == nil {
		t.Error("Expected NaN crossfade from env to be rejected")
	}
	t.Setenv("DESKTOPDOC_CROSSFADE", "+Inf")
	if _, err := Load(""); err == nil {
		t.Error("Expected infinite crossfade from env to be rejected")
	}
}

func TestClampNaN(t *testing.T) {
	if got := ClampCrossfade(math.NaN()); got != DefaultCrossfade {
		t.Errorf("Expected %v, got %v", DefaultCrossfade, got)
	}
	b := Default().ImageDuration
	if got := b.Clamp(math.NaN()); got != b.Default {
		t.Errorf("Expected %v, got %v", b.Default, got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("Expected missing file to fall back to defaults, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DESKTOPDOC_CROSSFADE", "0.25")
	t.Setenv("DESKTOPDOC_RESOLUTION", "9:16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Crossfade != 0.25 {
		t.Errorf("Expected crossfade 0.25, got %v", cfg.Crossfade)
	}
	res, _ := ParseResolution(cfg.Resolution)
	if res.Width != 1080 || res.Height != 1920 {
		t.Errorf("Expected 1080x1920, got %dx%d", res.Width, res.Height)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in     string
		w, h   int
		hasErr bool
	}{
		{"1280x720", 1280, 720, false},
		{"1920x1080", 1920, 1080, false},
		{"1:1", 1080, 1080, false},
		{"9:16", 1080, 1920, false},
		{"640x480", 0, 0, true},
	}
	for _, tt := range tests {
		res, err := ParseResolution(tt.in)
		if (err != nil) != tt.hasErr {
			t.Errorf("%s: unexpected error state: %v", tt.in, err)
			continue
		}
		if res.Width != tt.w || res.Height != tt.h {
			t.Errorf("%s: expected %dx%d, got %dx%d", tt.in, tt.w, tt.h, res.Width, res.Height)
		}
	}
}

func TestImageDurationClamp(t *testing.T) {
	b := Default().ImageDuration
	tests := []struct{ in, want float64 }{
		{10.0, 4.0},
		{-1, 0.05},
		{2.5, 2.5},
		{0.05, 0.05},
	}
	for _, tt := range tests {
		if got := b.Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff2e88")
	if err != nil {
		t.Fatal(err)
	}
	if c.R != 0xff || c.G != 0x2e || c.B != 0x88 || c.A != 0xff {
		t.Errorf("Unexpected color %+v", c)
	}
	if _, err := ParseColor("nope"); err == nil {
		t.Error("Expected error for invalid color")
	}
}
