package volume

import (
	"testing"

	"github.com/pthm-cable/fieldview/field"
)

func rampField(t *testing.T, dims field.Dims) *field.Field {
	t.Helper()
	f, err := field.FromFunc(dims, func(tt, x, y, z int) float32 {
		return float32(tt*1000 + x + y*10 + z*100)
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func tickUntilSwap(t *testing.T, b *Builder, budget Budget, maxTicks int) int {
	t.Helper()
	for i := 1; i <= maxTicks; i++ {
		if b.Tick(budget) {
			return i
		}
	}
	t.Fatalf("no swap after %d ticks", maxTicks)
	return 0
}

func TestBuilderLiveOnlyAfterCompletion(t *testing.T) {
	f := rampField(t, field.Dims{T: 3, X: 4, Y: 4, Z: 4})
	b := NewBuilder()
	b.SetSource(f)

	if !b.Request(Request{Time: 1, Mode: RangeCustom, Custom: field.Range{Min: 0, Max: 4000}}) {
		t.Fatal("first request should start a rebuild")
	}
	budget := Budget{RangeSamples: 16, Cells: 10}
	for i := 0; i < 6; i++ {
		if b.Tick(budget) {
			t.Fatalf("swap after %d ticks; 64 cells at 10 per tick need 7", i+1)
		}
		if b.Live() != nil {
			t.Fatal("partial buffer must not be live")
		}
	}
	if !b.Tick(budget) {
		t.Fatal("expected swap on 7th tick")
	}
	live := b.Live()
	if live == nil || live.Time != 1 {
		t.Fatalf("live = %+v, want time 1", live)
	}
	if b.Pending() {
		t.Error("no rebuild should be pending after swap")
	}
}

func TestBuilderSwapIsAtomicAcrossRequests(t *testing.T) {
	f := rampField(t, field.Dims{T: 4, X: 8, Y: 8, Z: 8})
	b := NewBuilder()
	b.SetSource(f)

	var swaps []Stats
	b.OnSwap(func(s Stats) { swaps = append(swaps, s) })

	b.Request(Request{Time: 0, Grid: field.Grid{Res: field.Vec3i{X: 8, Y: 8, Z: 8}}})
	b.Flush()
	first := b.Live()

	budget := Budget{RangeSamples: 100, Cells: 20}
	b.Request(Request{Time: 0, Grid: field.Grid{Res: field.Vec3i{X: 4, Y: 4, Z: 4}}})
	b.Tick(budget)
	if b.Live() != first {
		t.Fatal("live buffer changed before the new one completed")
	}
	// Time change mid-rebuild supersedes the grid-only job.
	b.Request(Request{Time: 2, Grid: field.Grid{Res: field.Vec3i{X: 4, Y: 4, Z: 4}}})
	tickUntilSwap(t, b, budget, 1000)

	live := b.Live()
	if live.Time != 2 || live.Res != (field.Vec3i{X: 4, Y: 4, Z: 4}) {
		t.Fatalf("live time=%d res=%v, want time 2 res 4x4x4", live.Time, live.Res)
	}
	if len(live.Values) != 64 {
		t.Fatalf("len(Values) = %d, want 64", len(live.Values))
	}
	if first.Res != (field.Vec3i{X: 8, Y: 8, Z: 8}) || len(first.Values) != 512 {
		t.Error("previous live buffer was mutated")
	}
	if len(swaps) != 2 {
		t.Fatalf("swaps = %d, want 2", len(swaps))
	}
	if swaps[1].Abandoned != 1 {
		t.Errorf("abandoned = %d, want 1", swaps[1].Abandoned)
	}

	// Every cell must match a from-scratch resample of the same request.
	want := field.Resample(f, live.Grid, 2, 0, nil)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				exp := live.Range.Normalize(want[(z*4+y)*4+x])
				if got := live.At(x, y, z); got != exp {
					t.Fatalf("cell (%d,%d,%d) = %v, want %v", x, y, z, got, exp)
				}
			}
		}
	}
}

func TestBuilderSkipsDuplicateRequests(t *testing.T) {
	f := rampField(t, field.Dims{T: 2, X: 2, Y: 2, Z: 2})
	b := NewBuilder()
	b.SetSource(f)

	req := Request{Time: 1}
	if !b.Request(req) {
		t.Fatal("first request ignored")
	}
	if b.Request(req) {
		t.Error("duplicate of in-flight request should be ignored")
	}
	b.Flush()
	if b.Request(req) {
		t.Error("duplicate of live request should be ignored")
	}
	// Out-of-range time clamps to the same request.
	if b.Request(Request{Time: 9}) {
		t.Error("clamped time should match the live request")
	}
}

func TestBuilderReturnToLiveDropsJob(t *testing.T) {
	f := rampField(t, field.Dims{T: 3, X: 4, Y: 4, Z: 4})
	b := NewBuilder()
	b.SetSource(f)
	swaps := 0
	b.OnSwap(func(Stats) { swaps++ })

	b.Request(Request{Time: 0})
	b.Flush()
	live := b.Live()

	// Step forward, then back before the forward rebuild finishes.
	b.Request(Request{Time: 1})
	b.Tick(Budget{RangeSamples: 8, Cells: 1})
	if b.Request(Request{Time: 0}) {
		t.Error("request for the live buffer should not start a rebuild")
	}
	if b.Pending() {
		t.Error("in-flight rebuild should be dropped")
	}
	b.Flush()
	if swaps != 1 {
		t.Errorf("swaps = %d, want 1", swaps)
	}
	if b.Live() != live {
		t.Error("live buffer replaced")
	}

	// The dropped rebuild is reported with the next completion.
	var last Stats
	b.OnSwap(func(s Stats) { last = s })
	b.Request(Request{Time: 2})
	b.Flush()
	if last.Abandoned != 1 {
		t.Errorf("abandoned = %d, want 1", last.Abandoned)
	}
}

func TestBuilderClampsOversizedGrid(t *testing.T) {
	f := rampField(t, field.Dims{T: 1, X: 4, Y: 4, Z: 4})
	b := NewBuilder()
	b.SetSource(f)

	b.Request(Request{Grid: field.Grid{Offset: field.Vec3i{X: 2}, Res: field.Vec3i{X: 16, Y: 16, Z: 16}}})
	b.Flush()
	live := b.Live()
	if live == nil {
		t.Fatal("no live buffer")
	}
	if live.Res != (field.Vec3i{X: 2, Y: 4, Z: 4}) {
		t.Errorf("res = %v, want 2x4x4", live.Res)
	}
	if !b.clampWarned || b.clampedFrom.Res.X != 16 {
		t.Errorf("clamp not recorded: %v %+v", b.clampWarned, b.clampedFrom)
	}
}

func TestBuilderGlobalRangeIsCached(t *testing.T) {
	f := rampField(t, field.Dims{T: 3, X: 3, Y: 3, Z: 3})
	b := NewBuilder()
	b.SetSource(f)

	var swaps []Stats
	b.OnSwap(func(s Stats) { swaps = append(swaps, s) })

	b.Request(Request{Time: 0, Mode: RangeGlobal})
	b.Flush()
	b.Request(Request{Time: 2, Mode: RangeGlobal})
	b.Flush()

	if len(swaps) != 2 {
		t.Fatalf("swaps = %d", len(swaps))
	}
	if swaps[0].Scanned != f.Dims().Len() {
		t.Errorf("first build scanned %d, want %d", swaps[0].Scanned, f.Dims().Len())
	}
	if swaps[1].Scanned != 0 {
		t.Errorf("second build rescanned %d samples, want cached range", swaps[1].Scanned)
	}
	if swaps[0].Range != swaps[1].Range {
		t.Errorf("ranges differ: %v vs %v", swaps[0].Range, swaps[1].Range)
	}
	if r := swaps[0].Range; r.Min != 0 || r.Max != 2222 {
		t.Errorf("global range = %v, want [0, 2222]", r)
	}
}

func TestBuilderPerTimeRange(t *testing.T) {
	f := rampField(t, field.Dims{T: 3, X: 2, Y: 2, Z: 2})
	b := NewBuilder()
	b.SetSource(f)

	b.Request(Request{Time: 2, Mode: RangePerTime})
	b.Flush()
	r := b.Live().Range
	if r.Min != 2000 || r.Max != 2111 {
		t.Errorf("per-time range = %v, want [2000, 2111]", r)
	}
	if got := b.Live().At(0, 0, 0); got != 0 {
		t.Errorf("min cell = %v, want 0", got)
	}
	if got := b.Live().At(1, 1, 1); got != 1 {
		t.Errorf("max cell = %v, want 1", got)
	}
}

func TestBuilderSetSourceDropsBuffers(t *testing.T) {
	b := NewBuilder()
	b.SetSource(rampField(t, field.Dims{T: 1, X: 2, Y: 2, Z: 2}))
	b.Request(Request{})
	b.Flush()
	if b.Live() == nil {
		t.Fatal("expected live buffer")
	}
	b.SetSource(rampField(t, field.Dims{T: 1, X: 3, Y: 3, Z: 3}))
	if b.Live() != nil || b.Pending() {
		t.Error("new source must drop live and pending buffers")
	}
}

func TestAtlasLayoutIndex(t *testing.T) {
	g := field.Grid{Res: field.Vec3i{X: 2, Y: 3, Z: 5}}
	buf := newBuffer(Atlas2D, g, 0)
	// ceil(sqrt(5)) = 3 tiles across, 2 rows.
	if buf.Width != 6 || buf.Height != 6 {
		t.Fatalf("atlas = %dx%d, want 6x6", buf.Width, buf.Height)
	}

	seen := make(map[int]bool)
	for z := 0; z < 5; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 2; x++ {
				i := buf.Index(x, y, z)
				if i < 0 || i >= len(buf.Values) {
					t.Fatalf("index (%d,%d,%d) = %d out of bounds", x, y, z, i)
				}
				if seen[i] {
					t.Fatalf("index (%d,%d,%d) = %d reused", x, y, z, i)
				}
				seen[i] = true
			}
		}
	}
	// Slice 4 sits in tile (1, 1).
	if got := buf.Index(0, 0, 4); got != 3*6+2 {
		t.Errorf("Index(0,0,4) = %d, want %d", got, 3*6+2)
	}
}

func TestAtlasBuildMatchesVolume(t *testing.T) {
	f := rampField(t, field.Dims{T: 1, X: 3, Y: 2, Z: 5})
	build := func(l Layout) *Buffer {
		b := NewBuilder()
		b.SetSource(f)
		b.Request(Request{Layout: l})
		b.Flush()
		return b.Live()
	}
	vol, atlas := build(Volume3D), build(Atlas2D)
	for z := 0; z < 5; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				if vol.At(x, y, z) != atlas.At(x, y, z) {
					t.Fatalf("cell (%d,%d,%d): volume %v atlas %v", x, y, z, vol.At(x, y, z), atlas.At(x, y, z))
				}
			}
		}
	}
}

func TestParseModes(t *testing.T) {
	for _, m := range []RangeMode{RangeGlobal, RangePerTime, RangeCustom, RangePercentile} {
		got, err := ParseRangeMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseRangeMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseRangeMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if l, err := ParseLayout("atlas"); err != nil || l != Atlas2D {
		t.Errorf("ParseLayout(atlas) = %v, %v", l, err)
	}
}
