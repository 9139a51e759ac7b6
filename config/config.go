// Package config provides configuration loading and access for the viewer.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/lod"
	"github.com/pthm-cable/fieldview/raymarch"
	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/volume"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all viewer configuration parameters.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Source    SourceConfig    `yaml:"source"`
	Render    RenderConfig    `yaml:"render"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Grid      GridConfig      `yaml:"grid"`
	Range     RangeConfig     `yaml:"range"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Builder   BuilderConfig   `yaml:"builder"`
	LOD       LODConfig       `yaml:"lod"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	TargetFPS int     `yaml:"target_fps"`
	Scale     float64 `yaml:"render_scale"` // raymarch resolution as a fraction of the window
}

// SourceConfig selects the field and optional derivation applied after load.
type SourceConfig struct {
	Path       string  `yaml:"path"`   // manifest dir, .mhd/glob, raw file; empty = synthetic
	Series     string  `yaml:"series"` // manifest series: psc, raw, anatomy
	Dims       [4]int  `yaml:"dims"`   // T X Y Z for raw and synthetic sources
	Seed       int64   `yaml:"seed"`
	TR         float64 `yaml:"tr"` // 0 = from the source
	Derive     string  `yaml:"derive"` // none, mean, psc
	Baseline   string  `yaml:"baseline"` // first_n, mean
	BaselineN  int     `yaml:"baseline_n"`
	PSCRange   float64 `yaml:"psc_range"`
	Downsample int     `yaml:"downsample"`

	// Crop to the voxels whose time mean exceeds CropThreshold of the 2-98
	// percentile window, padded by CropPad voxels.
	CropCenter    bool    `yaml:"crop_center"`
	CropThreshold float64 `yaml:"crop_threshold"`
	CropPad       int     `yaml:"crop_pad"`
}

// RenderConfig holds raymarch parameters.
type RenderConfig struct {
	StepSize       float64 `yaml:"step_size"`
	MaxSteps       int     `yaml:"max_steps"`
	IntensityScale float64 `yaml:"intensity_scale"`
	EarlyExitAlpha float64 `yaml:"early_exit_alpha"`
	MinOpacity     float64 `yaml:"min_opacity"`
	Workers        int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// TransferConfig selects a named scheme, or "custom" to use the explicit
// colors and alphas.
type TransferConfig struct {
	Scheme          string     `yaml:"scheme"`
	MinColor        [3]float64 `yaml:"min_color"`
	MaxColor        [3]float64 `yaml:"max_color"`
	MinAlpha        float64    `yaml:"min_alpha"`
	MaxAlpha        float64    `yaml:"max_alpha"`
	UseTransparency bool       `yaml:"use_transparency"`
}

// GridConfig holds the render grid. Zero sizes and resolutions mean "whole
// field" and "native resolution".
type GridConfig struct {
	Resolution   [3]int `yaml:"resolution"`
	Offset       [3]int `yaml:"offset"`
	Size         [3]int `yaml:"size"`
	WindowRadius int    `yaml:"window_radius"`
	Layout       string `yaml:"layout"` // volume or atlas
}

// RangeConfig holds the normalization policy.
type RangeConfig struct {
	Mode           string  `yaml:"mode"` // global, per_time, custom, percentile
	CustomMin      float64 `yaml:"custom_min"`
	CustomMax      float64 `yaml:"custom_max"`
	Stride         int     `yaml:"stride"`
	PercentileLow  float64 `yaml:"percentile_low"`
	PercentileHigh float64 `yaml:"percentile_high"`
}

// PlaybackConfig holds animation settings.
type PlaybackConfig struct {
	SecondsPerStep float64 `yaml:"seconds_per_step"` // 0 = source TR
	Speed          float64 `yaml:"speed"`
	Autoplay       bool    `yaml:"autoplay"`
}

// BuilderConfig bounds the rebuild work done per frame.
type BuilderConfig struct {
	CellsPerTick        int `yaml:"cells_per_tick"`
	RangeSamplesPerTick int `yaml:"range_samples_per_tick"`
}

// LODConfig holds the distance policy.
type LODConfig struct {
	MaxRenderDistance float64        `yaml:"max_render_distance"`
	Tiers             []lod.TierSpec `yaml:"tiers"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	LogInterval         float64 `yaml:"log_interval"` // seconds between perf log lines
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ScreenW32    float32
	ScreenH32    float32
	Layout       volume.Layout
	RangeMode    volume.RangeMode
	Transfer     transfer.Function
	Render       raymarch.Params
	Grid         field.Grid
	BuilderTicks volume.Budget
	LOD          lod.Config
	Baseline     field.Baseline
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay applies YAML on top of the current values and recomputes the
// derived values. Keys absent from data keep their current values.
func (c *Config) Overlay(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config overlay: %w", err)
	}
	return c.computeDerived()
}

// Refresh recomputes the derived values after fields were set directly.
func (c *Config) Refresh() error {
	return c.computeDerived()
}

// computeDerived validates enums and builds the domain values. Out-of-range
// numbers are clamped with a warning rather than rejected.
func (c *Config) computeDerived() error {
	d := &c.Derived
	d.ScreenW32 = float32(c.Screen.Width)
	d.ScreenH32 = float32(c.Screen.Height)
	if !(c.Screen.Scale > 0) || c.Screen.Scale > 1 {
		c.Screen.Scale = 1
	}

	var err error
	if d.Layout, err = volume.ParseLayout(c.Grid.Layout); err != nil {
		return fmt.Errorf("config grid.layout: %w", err)
	}
	if d.RangeMode, err = volume.ParseRangeMode(c.Range.Mode); err != nil {
		return fmt.Errorf("config range.mode: %w", err)
	}
	if d.Transfer, err = c.Transfer.Function(); err != nil {
		return err
	}
	if d.Baseline, err = field.ParseBaseline(c.Source.Baseline); err != nil {
		return fmt.Errorf("config source.baseline: %w", err)
	}

	if c.Range.Stride < 1 {
		c.Range.Stride = 1
	}
	if c.Grid.WindowRadius < 0 {
		slog.Warn("config clamped", "key", "grid.window_radius", "value", c.Grid.WindowRadius)
		c.Grid.WindowRadius = 0
	}
	if c.Range.PercentileHigh <= c.Range.PercentileLow {
		slog.Warn("config clamped", "key", "range.percentile_high", "value", c.Range.PercentileHigh)
		c.Range.PercentileLow, c.Range.PercentileHigh = 2, 98
	}
	if c.Builder.CellsPerTick < 1 {
		c.Builder.CellsPerTick = 1
	}
	if c.Builder.RangeSamplesPerTick < 1 {
		c.Builder.RangeSamplesPerTick = 1
	}
	if c.Source.Downsample < 1 {
		c.Source.Downsample = 1
	}
	if c.Source.CropPad < 0 {
		slog.Warn("config clamped", "key", "source.crop_pad", "value", c.Source.CropPad)
		c.Source.CropPad = 0
	}

	d.Render = raymarch.Params{
		StepSize:       float32(c.Render.StepSize),
		MaxSteps:       c.Render.MaxSteps,
		IntensityScale: float32(c.Render.IntensityScale),
		EarlyExitAlpha: float32(c.Render.EarlyExitAlpha),
		MinOpacity:     float32(c.Render.MinOpacity),
	}
	d.Grid = field.Grid{
		Offset: vec3i(c.Grid.Offset),
		Size:   vec3i(c.Grid.Size),
		Res:    vec3i(c.Grid.Resolution),
	}
	d.BuilderTicks = volume.Budget{
		RangeSamples: c.Builder.RangeSamplesPerTick,
		Cells:        c.Builder.CellsPerTick,
	}
	d.LOD = lod.Config{
		MaxRenderDistance: float32(c.LOD.MaxRenderDistance),
		Tiers:             c.LOD.Tiers,
	}
	return nil
}

// Function builds the transfer function. Named schemes ignore the explicit
// colors; "custom" uses them.
func (t TransferConfig) Function() (transfer.Function, error) {
	if t.Scheme != "" && t.Scheme != "custom" {
		f, ok := transfer.Lookup(t.Scheme)
		if !ok {
			return transfer.Function{}, fmt.Errorf("config transfer.scheme: unknown scheme %q (have %v)", t.Scheme, transfer.Names())
		}
		return f, nil
	}
	return transfer.Function{
		MinColor:        rgb(t.MinColor),
		MaxColor:        rgb(t.MaxColor),
		MinAlpha:        float32(t.MinAlpha),
		MaxAlpha:        float32(t.MaxAlpha),
		UseTransparency: t.UseTransparency,
	}, nil
}

// SourceDims returns the configured source dimensions.
func (c *Config) SourceDims() field.Dims {
	d := c.Source.Dims
	return field.Dims{T: d[0], X: d[1], Y: d[2], Z: d[3]}
}

// BuildRequest assembles a builder request for time index t.
func (c *Config) BuildRequest(t int) volume.Request {
	return volume.Request{
		Grid:           c.Derived.Grid,
		Layout:         c.Derived.Layout,
		Time:           t,
		Radius:         c.Grid.WindowRadius,
		Mode:           c.Derived.RangeMode,
		Custom:         field.Range{Min: float32(c.Range.CustomMin), Max: float32(c.Range.CustomMax)},
		Stride:         c.Range.Stride,
		PercentileLow:  c.Range.PercentileLow,
		PercentileHigh: c.Range.PercentileHigh,
	}
}

func vec3i(v [3]int) field.Vec3i { return field.Vec3i{X: v[0], Y: v[1], Z: v[2]} }

func rgb(v [3]float64) transfer.RGB {
	return transfer.RGB{R: float32(v[0]), G: float32(v[1]), B: float32(v[2])}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
