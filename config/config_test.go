package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/volume"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	if cfg.Derived.Layout != volume.Volume3D {
		t.Errorf("layout = %v, want volume", cfg.Derived.Layout)
	}
	if cfg.Derived.RangeMode != volume.RangeGlobal {
		t.Errorf("range mode = %v, want global", cfg.Derived.RangeMode)
	}
	heat, _ := transfer.Lookup("heat")
	if cfg.Derived.Transfer != heat {
		t.Errorf("transfer = %+v, want heat scheme", cfg.Derived.Transfer)
	}
	if cfg.Derived.Render.StepSize != 0.01 || cfg.Derived.Render.MaxSteps != 256 {
		t.Errorf("render = %+v", cfg.Derived.Render)
	}
	if len(cfg.Derived.LOD.Tiers) != 3 {
		t.Errorf("lod tiers = %v", cfg.Derived.LOD.Tiers)
	}
	if got := cfg.SourceDims(); got != (field.Dims{T: 24, X: 48, Y: 48, Z: 32}) {
		t.Errorf("source dims = %v", got)
	}
	if cfg.Derived.ScreenW32 != 1280 {
		t.Errorf("screen width = %v", cfg.Derived.ScreenW32)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.yaml")
	user := `
grid:
  layout: atlas
  resolution: [16, 16, 8]
range:
  mode: custom
  custom_min: -2
  custom_max: 2
transfer:
  scheme: custom
  min_color: [0, 0, 1]
  max_color: [1, 0, 0]
  max_alpha: 0.5
`
	if err := os.WriteFile(path, []byte(user), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Derived.Layout != volume.Atlas2D {
		t.Errorf("layout = %v, want atlas", cfg.Derived.Layout)
	}
	// Untouched keys keep their defaults.
	if cfg.Render.MaxSteps != 256 || cfg.Grid.WindowRadius != 1 {
		t.Errorf("defaults lost: max_steps=%d radius=%d", cfg.Render.MaxSteps, cfg.Grid.WindowRadius)
	}
	tf := cfg.Derived.Transfer
	if tf.MinColor != (transfer.RGB{B: 1}) || tf.MaxColor != (transfer.RGB{R: 1}) || tf.MaxAlpha != 0.5 {
		t.Errorf("custom transfer = %+v", tf)
	}

	req := cfg.BuildRequest(3)
	want := volume.Request{
		Grid:           field.Grid{Res: field.Vec3i{X: 16, Y: 16, Z: 8}},
		Layout:         volume.Atlas2D,
		Time:           3,
		Radius:         1,
		Mode:           volume.RangeCustom,
		Custom:         field.Range{Min: -2, Max: 2},
		Stride:         1,
		PercentileLow:  2,
		PercentileHigh: 98,
	}
	if req != want {
		t.Errorf("request = %+v\nwant %+v", req, want)
	}
}

func TestLoadRejectsBadEnums(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"layout", "grid:\n  layout: slices\n"},
		{"range mode", "range:\n  mode: median\n"},
		{"scheme", "transfer:\n  scheme: rainbow\n"},
		{"baseline", "source:\n  baseline: median\n"},
		{"yaml", "grid: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			os.WriteFile(path, []byte(tt.body), 0644)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestLoadClampsNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clamp.yaml")
	body := `
screen:
  render_scale: 4
grid:
  window_radius: -3
range:
  stride: 0
  percentile_low: 90
  percentile_high: 10
builder:
  cells_per_tick: 0
source:
  downsample: -1
  crop_pad: -2
  baseline: mean
`
	os.WriteFile(path, []byte(body), 0644)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Screen.Scale != 1 || cfg.Grid.WindowRadius != 0 || cfg.Range.Stride != 1 {
		t.Errorf("scale=%v radius=%d stride=%d", cfg.Screen.Scale, cfg.Grid.WindowRadius, cfg.Range.Stride)
	}
	if cfg.Range.PercentileLow != 2 || cfg.Range.PercentileHigh != 98 {
		t.Errorf("percentiles = %v/%v", cfg.Range.PercentileLow, cfg.Range.PercentileHigh)
	}
	if cfg.Derived.BuilderTicks.Cells != 1 || cfg.Source.Downsample != 1 || cfg.Source.CropPad != 0 {
		t.Errorf("cells=%d downsample=%d crop_pad=%d", cfg.Derived.BuilderTicks.Cells, cfg.Source.Downsample, cfg.Source.CropPad)
	}
	if cfg.Derived.Baseline != field.BaselineMean {
		t.Errorf("baseline = %v, want mean", cfg.Derived.Baseline)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Render.IntensityScale = 7
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Derived.Render.IntensityScale != 7 {
		t.Errorf("intensity = %v, want 7", back.Derived.Render.IntensityScale)
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("Cfg() did not panic")
		}
	}()
	Cfg()
}
