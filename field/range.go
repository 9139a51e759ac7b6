package field

import (
	"log/slog"
	"sort"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/stat"
)

// Range is the [Min, Max] window used to normalize samples into [0, 1].
type Range struct {
	Min, Max float32
}

// Degenerate reports whether the range has no width. Every value normalizes
// to 0 in that case.
func (r Range) Degenerate() bool { return r.Max <= r.Min }

// Normalize maps v into [0, 1], clamping values outside the range.
func (r Range) Normalize(v float32) float32 {
	if r.Degenerate() || !finite(v) {
		return 0
	}
	n := (v - r.Min) / (r.Max - r.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// LogValue implements slog.LogValuer.
func (r Range) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("min", float64(r.Min)),
		slog.Float64("max", float64(r.Max)),
	)
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// RangeScanner computes the min/max of a grid region over a span of time
// points in bounded steps, so a large field can be scanned across several
// frames. NaN and infinite samples are skipped.
//
// With stride > 1 only every stride-th voxel along each axis is examined.
// That can miss isolated extremes; it trades accuracy for scan time on large
// fields.
type RangeScanner struct {
	f      *Field
	grid   Grid
	span   Span
	stride int

	// cursor
	t, x, y, z int

	min, max float32
	valid    int
	scanned  int
	done     bool
}

// NewRangeScanner prepares a scan. The grid is clamped to the field first.
func NewRangeScanner(f *Field, grid Grid, span Span, stride int) *RangeScanner {
	if stride < 1 {
		stride = 1
	}
	grid, _ = grid.Clamp(f.dims)
	span = span.clamp(f.dims)
	s := &RangeScanner{
		f:      f,
		grid:   grid,
		span:   span,
		stride: stride,
		t:      span.From,
		x:      grid.Offset.X,
		y:      grid.Offset.Y,
		z:      grid.Offset.Z,
	}
	if span.Len() == 0 {
		s.done = true
	}
	return s
}

// Step examines at most budget samples and reports whether the scan is
// complete. A non-positive budget is treated as 1 so the scan always makes
// progress.
func (s *RangeScanner) Step(budget int) bool {
	if budget < 1 {
		budget = 1
	}
	for n := 0; n < budget && !s.done; n++ {
		v := s.f.data[s.f.index(s.t, s.x, s.y, s.z)]
		s.scanned++
		if finite(v) {
			if s.valid == 0 {
				s.min, s.max = v, v
			} else {
				if v < s.min {
					s.min = v
				}
				if v > s.max {
					s.max = v
				}
			}
			s.valid++
		}
		s.advance()
	}
	return s.done
}

func (s *RangeScanner) advance() {
	g := s.grid
	s.x += s.stride
	if s.x < g.Offset.X+g.Size.X {
		return
	}
	s.x = g.Offset.X
	s.y += s.stride
	if s.y < g.Offset.Y+g.Size.Y {
		return
	}
	s.y = g.Offset.Y
	s.z += s.stride
	if s.z < g.Offset.Z+g.Size.Z {
		return
	}
	s.z = g.Offset.Z
	s.t++
	if s.t >= s.span.To {
		s.done = true
	}
}

// Done reports whether every candidate sample has been examined.
func (s *RangeScanner) Done() bool { return s.done }

// Scanned returns the number of samples examined so far.
func (s *RangeScanner) Scanned() int { return s.scanned }

// Range returns the range found so far; (0, 0) when no finite sample was seen.
func (s *RangeScanner) Range() Range {
	if s.valid == 0 {
		return Range{}
	}
	return Range{Min: s.min, Max: s.max}
}

// EstimateRange runs a full scan in one call.
func EstimateRange(f *Field, grid Grid, span Span, stride int) Range {
	s := NewRangeScanner(f, grid, span, stride)
	for !s.Step(1 << 16) {
	}
	return s.Range()
}

// PercentileWindow returns a robust range at the lo/hi percentiles (0-100) of
// the finite samples in the region, the way the converter windows BOLD
// intensities before quantizing. A window with no width is widened by 1e-6,
// or by one float32 step where 1e-6 is below the precision of Min.
func PercentileWindow(f *Field, grid Grid, span Span, stride int, lo, hi float64) Range {
	s := NewRangeScanner(f, grid, span, stride)
	samples := make([]float64, 0, 1024)
	for !s.done {
		v := s.f.data[s.f.index(s.t, s.x, s.y, s.z)]
		if finite(v) {
			samples = append(samples, float64(v))
		}
		s.advance()
	}
	if len(samples) == 0 {
		return Range{}
	}
	sort.Float64s(samples)

	loV := stat.Quantile(clampPct(lo)/100, stat.LinInterp, samples, nil)
	hiV := stat.Quantile(clampPct(hi)/100, stat.LinInterp, samples, nil)
	r := Range{Min: float32(loV), Max: float32(hiV)}
	if r.Max <= r.Min {
		r.Max = max(r.Min+1e-6, math32.Nextafter(r.Min, math32.Inf(1)))
	}
	return r
}

func clampPct(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
