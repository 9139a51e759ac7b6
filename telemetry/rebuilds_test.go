package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/volume"
)

func TestNewRebuildRecord(t *testing.T) {
	r := NewRebuildRecord(9, volume.Stats{
		Time:      3,
		Res:       field.Vec3i{X: 4, Y: 5, Z: 6},
		Layout:    volume.Atlas2D,
		Range:     field.Range{Min: -1, Max: 2},
		Cells:     120,
		Ticks:     4,
		Duration:  2500 * time.Microsecond,
		Abandoned: 1,
	})
	if r.Frame != 9 || r.Time != 3 || r.ResZ != 6 || r.Layout != "atlas" {
		t.Errorf("record = %+v", r)
	}
	if math.Abs(r.LatencyMS-2.5) > 1e-9 {
		t.Errorf("latency = %v, want 2.5", r.LatencyMS)
	}
}

func TestRebuildWindowSummary(t *testing.T) {
	var w RebuildWindow
	for i := 1; i <= 10; i++ {
		w.Add(RebuildRecord{LatencyMS: float64(11 - i), Ticks: 2, Abandoned: i % 2})
	}
	s := w.Summary()
	tests := []struct {
		name      string
		got, want float64
	}{
		{"count", float64(s.Count), 10},
		{"abandoned", float64(s.Abandoned), 5},
		{"mean", s.LatencyMean, 5.5},
		{"p50", s.LatencyP50, 5},
		{"p90", s.LatencyP90, 9},
		{"ticks", s.TicksMean, 2},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if empty := w.Summary(); empty.Count != 0 || empty.LatencyMean != 0 {
		t.Errorf("window not reset: %+v", empty)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := om.WriteRebuild(RebuildRecord{Frame: int64(i), Layout: "volume"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{PhasePct: map[string]float64{}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "rebuilds.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("rebuilds.csv has %d lines, want header + 2:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "frame,time_index,") {
		t.Errorf("header = %q", lines[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "perf.csv")); err != nil {
		t.Error(err)
	}
}

func TestNilOutputManager(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("disabled output: %v %v", om, err)
	}
	if err := om.WriteRebuild(RebuildRecord{}); err != nil {
		t.Error(err)
	}
	if om.Path("x") != "" || om.Close() != nil {
		t.Error("nil manager should be a no-op")
	}
}
