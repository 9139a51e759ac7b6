package volume

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/fieldview/field"
)

// RangeMode selects how the normalization range is obtained.
type RangeMode int

const (
	// RangeGlobal scans the grid region over every time point once and
	// reuses the result while only the time index changes.
	RangeGlobal RangeMode = iota
	// RangePerTime rescans the region for each time point.
	RangePerTime
	// RangeCustom uses Request.Custom as-is.
	RangeCustom
	// RangePercentile uses a robust lo/hi percentile window over all time
	// points. It is computed in a single tick and cached like RangeGlobal.
	RangePercentile
)

func (m RangeMode) String() string {
	switch m {
	case RangeGlobal:
		return "global"
	case RangePerTime:
		return "per_time"
	case RangeCustom:
		return "custom"
	case RangePercentile:
		return "percentile"
	default:
		return fmt.Sprintf("range_mode(%d)", int(m))
	}
}

// ParseRangeMode accepts the names produced by RangeMode.String.
func ParseRangeMode(s string) (RangeMode, error) {
	switch s {
	case "", "global":
		return RangeGlobal, nil
	case "per_time":
		return RangePerTime, nil
	case "custom":
		return RangeCustom, nil
	case "percentile":
		return RangePercentile, nil
	}
	return RangeGlobal, fmt.Errorf("volume: unknown range mode %q", s)
}

// Request describes the buffer a caller wants live.
type Request struct {
	Grid   field.Grid
	Layout Layout
	Time   int
	Radius int

	Mode           RangeMode
	Custom         field.Range
	Stride         int
	PercentileLow  float64
	PercentileHigh float64
}

// Budget bounds the work done by one Tick.
type Budget struct {
	RangeSamples int // samples examined by a pending range scan
	Cells        int // render cells resampled and normalized
}

// Stats describes a completed rebuild.
type Stats struct {
	Time      int
	Res       field.Vec3i
	Layout    Layout
	Range     field.Range
	Cells     int
	Scanned   int
	Ticks     int
	Duration  time.Duration
	Abandoned int // in-flight rebuilds dropped since the previous completion
}

type rangeKey struct {
	grid   field.Grid
	mode   RangeMode
	stride int
	lo, hi float64
}

type job struct {
	req     Request
	buf     *Buffer
	scanner *field.RangeScanner
	rng     field.Range
	ready   bool
	cell    int
	ticks   int
	started time.Time
}

// Builder turns field time points into render buffers a bounded amount of
// work at a time. Each request gets a freshly allocated buffer, and a buffer
// only becomes live after every cell is written, so Live never exposes a
// partially filled or mixed-shape buffer.
//
// Builder is driven from the frame loop and is not safe for concurrent use.
type Builder struct {
	src *field.Field

	live    *Buffer
	liveReq Request
	job     *job

	cacheKey   rangeKey
	cacheRange field.Range
	cacheValid bool

	abandoned int
	onSwap    func(Stats)

	// last grid reported as clamped, so each bad setting is logged once
	clampedFrom field.Grid
	clampWarned bool
}

// NewBuilder creates a builder with no source attached.
func NewBuilder() *Builder {
	return &Builder{}
}

// OnSwap registers a callback invoked each time a new buffer goes live.
func (b *Builder) OnSwap(fn func(Stats)) {
	b.onSwap = fn
}

// SetSource attaches a field and drops every buffer built from the previous
// one.
func (b *Builder) SetSource(f *field.Field) {
	b.Reset()
	b.src = f
}

// Source returns the attached field, or nil.
func (b *Builder) Source() *field.Field { return b.src }

// Reset detaches the source and releases the live and in-flight buffers.
func (b *Builder) Reset() {
	if b.job != nil {
		slog.Debug("rebuild abandoned", "reason", "reset", "time", b.job.req.Time)
	}
	b.src = nil
	b.live = nil
	b.liveReq = Request{}
	b.job = nil
	b.cacheValid = false
	b.abandoned = 0
}

// Live returns the last complete buffer, or nil before the first build
// finishes.
func (b *Builder) Live() *Buffer { return b.live }

// Pending reports whether a rebuild is in flight.
func (b *Builder) Pending() bool { return b.job != nil }

// Progress returns the fraction of the in-flight rebuild's cells written.
func (b *Builder) Progress() float32 {
	if b.job == nil {
		return 1
	}
	n := b.job.buf.Cells()
	if n == 0 {
		return 1
	}
	return float32(b.job.cell) / float32(n)
}

func (b *Builder) normalize(req Request) Request {
	g, changed := req.Grid.Clamp(b.src.Dims())
	if changed && (!b.clampWarned || b.clampedFrom != req.Grid) {
		slog.Warn("config clamped", "key", "grid", "requested", req.Grid, "used", g, "dims", b.src.Dims().String())
		b.clampWarned, b.clampedFrom = true, req.Grid
	}
	req.Grid = g
	t := b.src.Dims().T
	if req.Time < 0 {
		req.Time = 0
	}
	if req.Time >= t {
		req.Time = t - 1
	}
	if req.Stride < 1 {
		req.Stride = 1
	}
	if req.Radius < 0 {
		req.Radius = 0
	}
	return req
}

// Request asks for a buffer matching req. It returns false when the request
// is already live or already being built. Any other in-flight rebuild is
// abandoned; its buffer is discarded, never reused. A request for the live
// buffer abandons the in-flight rebuild without starting a new one.
func (b *Builder) Request(req Request) bool {
	if b.src == nil {
		return false
	}
	req = b.normalize(req)
	if b.job != nil && b.job.req == req {
		return false
	}
	if b.live != nil && b.liveReq == req {
		// Back to what is already shown: drop the detour, keep the buffer.
		b.abandon("returned to live")
		return false
	}
	b.abandon("superseded")

	j := &job{
		req:     req,
		buf:     newBuffer(req.Layout, req.Grid, req.Time),
		started: time.Now(),
	}
	switch req.Mode {
	case RangeCustom:
		j.rng, j.ready = req.Custom, true
	case RangePerTime:
		j.scanner = field.NewRangeScanner(b.src, req.Grid, field.TimePoint(req.Time), req.Stride)
	case RangeGlobal, RangePercentile:
		key := b.keyFor(req)
		if b.cacheValid && b.cacheKey == key {
			j.rng, j.ready = b.cacheRange, true
		} else if req.Mode == RangeGlobal {
			j.scanner = field.NewRangeScanner(b.src, req.Grid, field.AllTime(b.src.Dims()), req.Stride)
		}
	}
	b.job = j
	return true
}

func (b *Builder) abandon(reason string) {
	if b.job == nil {
		return
	}
	b.abandoned++
	slog.Debug("rebuild abandoned", "reason", reason, "time", b.job.req.Time)
	b.job = nil
}

func (b *Builder) keyFor(req Request) rangeKey {
	k := rangeKey{grid: req.Grid, mode: req.Mode, stride: req.Stride}
	if req.Mode == RangePercentile {
		k.lo, k.hi = req.PercentileLow, req.PercentileHigh
	}
	return k
}

// Tick advances the in-flight rebuild within budget and reports whether a
// new buffer went live.
func (b *Builder) Tick(budget Budget) bool {
	j := b.job
	if j == nil || b.src == nil {
		return false
	}
	j.ticks++

	if !j.ready {
		b.advanceRange(j, budget.RangeSamples)
		if !j.ready {
			return false
		}
	}

	cells := budget.Cells
	if cells < 1 {
		cells = 1
	}
	g := j.req.Grid
	total := g.Cells()
	for n := 0; n < cells && j.cell < total; n++ {
		gx := j.cell % g.Res.X
		gy := (j.cell / g.Res.X) % g.Res.Y
		gz := j.cell / (g.Res.X * g.Res.Y)
		raw := field.ResampleCell(b.src, g, j.req.Time, gx, gy, gz, j.req.Radius)
		j.buf.Values[j.buf.Index(gx, gy, gz)] = j.rng.Normalize(raw)
		j.cell++
	}
	if j.cell < total {
		return false
	}

	b.swap(j)
	return true
}

func (b *Builder) advanceRange(j *job, samples int) {
	req := j.req
	if req.Mode == RangePercentile {
		j.rng = field.PercentileWindow(b.src, req.Grid, field.AllTime(b.src.Dims()), req.Stride,
			req.PercentileLow, req.PercentileHigh)
		j.ready = true
		b.storeRange(req, j.rng)
		return
	}
	if !j.scanner.Step(samples) {
		return
	}
	j.rng = j.scanner.Range()
	j.ready = true
	if req.Mode == RangeGlobal {
		b.storeRange(req, j.rng)
	}
}

func (b *Builder) storeRange(req Request, r field.Range) {
	b.cacheKey = b.keyFor(req)
	b.cacheRange = r
	b.cacheValid = true
}

func (b *Builder) swap(j *job) {
	j.buf.Range = j.rng
	b.live = j.buf
	b.liveReq = j.req
	b.job = nil

	stats := Stats{
		Time:      j.req.Time,
		Res:       j.req.Grid.Res,
		Layout:    j.req.Layout,
		Range:     j.rng,
		Cells:     j.cell,
		Ticks:     j.ticks,
		Duration:  time.Since(j.started),
		Abandoned: b.abandoned,
	}
	if j.scanner != nil {
		stats.Scanned = j.scanner.Scanned()
	}
	b.abandoned = 0
	if b.onSwap != nil {
		b.onSwap(stats)
	}
}

// Flush runs the in-flight rebuild to completion. Headless rendering and
// tools use it; the interactive loop uses Tick.
func (b *Builder) Flush() bool {
	swapped := false
	for b.job != nil && b.src != nil {
		swapped = b.Tick(Budget{RangeSamples: 1 << 20, Cells: 1 << 20}) || swapped
	}
	return swapped
}
