package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Image duration bounds (seconds). Earlier builds used [1,10]; kept as
// configuration so the bound is not baked into the timeline.
const (
	DefaultImageDurationMin = 0.05
	DefaultImageDurationMax = 4.0
	DefaultImageDuration    = 4.0

	DefaultCrossfade = 1.0
	MinCrossfade     = 0.0
	MaxCrossfade     = 3.0

	DefaultRefreshRate    = 60
	DefaultCaptureFPS     = 30
	DefaultDriftTolerance = 0.1

	envPrefix = "DESKTOPDOC_"
)

// Resolution is one of the fixed output surface presets.
type Resolution struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var presets = []Resolution{
	{Name: "1280x720", Width: 1280, Height: 720},
	{Name: "1920x1080", Width: 1920, Height: 1080},
	{Name: "1080x1080", Width: 1080, Height: 1080},
	{Name: "1080x1920", Width: 1080, Height: 1920},
}

// Presets returns the supported output resolutions.
func Presets() []Resolution {
	out := make([]Resolution, len(presets))
	copy(out, presets)
	return out
}

// ParseResolution accepts a preset name ("1920x1080") or an aspect
// alias ("16:9", "16:9-hd", "1:1", "9:16").
func ParseResolution(s string) (Resolution, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "16:9":
		name = "1280x720"
	case "16:9-hd":
		name = "1920x1080"
	case "1:1":
		name = "1080x1080"
	case "9:16":
		name = "1080x1920"
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Resolution{}, fmt.Errorf("unknown resolution preset %q", s)
}

// ImageDurationBounds clamps per-image durations.
type ImageDurationBounds struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// Clamp forces d into [Min, Max].
func (b ImageDurationBounds) Clamp(d float64) float64 {
	if math.IsNaN(d) {
		return b.Default
	}
	if d < b.Min {
		return b.Min
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

type Config struct {
	Resolution     string              `yaml:"resolution"`
	Crossfade      float64             `yaml:"crossfade"`
	Title          string              `yaml:"title"`
	ShowTitle      bool                `yaml:"show_title"`
	AccentColor    string              `yaml:"accent_color"`
	ImageDuration  ImageDurationBounds `yaml:"image_duration"`
	RefreshRate    int                 `yaml:"refresh_rate"`
	CaptureFPS     int                 `yaml:"capture_fps"`
	DriftTolerance float64             `yaml:"drift_tolerance"`
	InputDir       string              `yaml:"input_dir"`
	OutputDir      string              `yaml:"output_dir"`
	Workers        int                 `yaml:"workers"`
	VideoEncoder   string              `yaml:"video_encoder"`
	Quality        int                 `yaml:"quality"`
	Container      string              `yaml:"container"`
	ListenAddr     string              `yaml:"listen_addr"`
	Verbose        bool                `yaml:"verbose"`
}

func Default() *Config {
	return &Config{
		Resolution:  "1280x720",
		Crossfade:   DefaultCrossfade,
		ShowTitle:   true,
		AccentColor: "#ff2e88",
		ImageDuration: ImageDurationBounds{
			Min:     DefaultImageDurationMin,
			Max:     DefaultImageDurationMax,
			Default: DefaultImageDuration,
		},
		RefreshRate:    DefaultRefreshRate,
		CaptureFPS:     DefaultCaptureFPS,
		DriftTolerance: DefaultDriftTolerance,
		InputDir:       "input",
		OutputDir:      "output",
		Workers:        4,
		VideoEncoder:   "auto",
		Container:      "mp4",
		ListenAddr:     "127.0.0.1:8080",
	}
}

// Load reads the yaml file at path over the defaults, then applies
// DESKTOPDOC_* environment overrides (a local .env is loaded first).
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	str("RESOLUTION", &c.Resolution)
	str("TITLE", &c.Title)
	str("ACCENT_COLOR", &c.AccentColor)
	str("INPUT_DIR", &c.InputDir)
	str("OUTPUT_DIR", &c.OutputDir)
	str("VIDEO_ENCODER", &c.VideoEncoder)
	str("LISTEN_ADDR", &c.ListenAddr)

	if v, ok := os.LookupEnv(envPrefix + "CROSSFADE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sCROSSFADE: %w", envPrefix, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%sCROSSFADE: not a finite number: %q", envPrefix, v)
		}
		c.Crossfade = f
	}
	if v, ok := os.LookupEnv(envPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", envPrefix, err)
		}
		c.Workers = n
	}
	if v, ok := os.LookupEnv(envPrefix + "SHOW_TITLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSHOW_TITLE: %w", envPrefix, err)
		}
		c.ShowTitle = b
	}
	if v, ok := os.LookupEnv(envPrefix + "VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sVERBOSE: %w", envPrefix, err)
		}
		c.Verbose = b
	}
	return nil
}

// Validate normalizes ranges and rejects values that cannot be clamped.
func (c *Config) Validate() error {
	if _, err := ParseResolution(c.Resolution); err != nil {
		return err
	}
	c.Crossfade = ClampCrossfade(c.Crossfade)

	b := &c.ImageDuration
	if !(b.Min > 0) || !(b.Max >= b.Min) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("invalid image duration bounds [%v, %v]", b.Min, b.Max)
	}
	if math.IsNaN(b.Default) {
		b.Default = b.Max
	}
	b.Default = b.Clamp(b.Default)

	if c.RefreshRate <= 0 {
		c.RefreshRate = DefaultRefreshRate
	}
	if c.CaptureFPS <= 0 {
		c.CaptureFPS = DefaultCaptureFPS
	}
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = DefaultDriftTolerance
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Container == "" {
		c.Container = "mp4"
	}
	if _, err := ParseColor(c.AccentColor); err != nil {
		return err
	}
	return nil
}

// ClampCrossfade forces a crossfade window into [0, 3] seconds.
func ClampCrossfade(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultCrossfade
	}
	if v < MinCrossfade {
		return MinCrossfade
	}
	if v > MaxCrossfade {
		return MaxCrossfade
	}
	return v
}
