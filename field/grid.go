package field

import "log/slog"

// Vec3i is an integer triple used for voxel offsets, extents and resolutions.
type Vec3i struct {
	X, Y, Z int
}

// Product returns X*Y*Z.
func (v Vec3i) Product() int { return v.X * v.Y * v.Z }

// Grid selects the spatial sub-region of a field to render and the resolution
// it is resampled to. A zero Size means "to the end of the field" and a zero
// Res means "native resolution of the region".
type Grid struct {
	Offset Vec3i `yaml:"offset"`
	Size   Vec3i `yaml:"size"`
	Res    Vec3i `yaml:"resolution"`
}

// Cells returns the number of render-grid cells.
func (g Grid) Cells() int { return g.Res.Product() }

// Clamp fits the grid inside a field of the given dimensions: the region is
// kept inside the spatial extent with at least one voxel per axis, and the
// resolution is kept in [1, region size]. The second result reports whether a
// non-default value had to be changed.
func (g Grid) Clamp(d Dims) (Grid, bool) {
	var out Grid
	var c [9]bool
	out.Offset.X, out.Size.X, out.Res.X, c[0], c[1], c[2] = clampAxis(g.Offset.X, g.Size.X, g.Res.X, d.X)
	out.Offset.Y, out.Size.Y, out.Res.Y, c[3], c[4], c[5] = clampAxis(g.Offset.Y, g.Size.Y, g.Res.Y, d.Y)
	out.Offset.Z, out.Size.Z, out.Res.Z, c[6], c[7], c[8] = clampAxis(g.Offset.Z, g.Size.Z, g.Res.Z, d.Z)
	changed := false
	for _, v := range c {
		changed = changed || v
	}
	return out, changed
}

func clampAxis(off, size, res, extent int) (o, s, r int, oc, sc, rc bool) {
	o = off
	if o < 0 {
		o, oc = 0, true
	}
	if o > extent-1 {
		o, oc = extent-1, true
	}

	s = size
	if s <= 0 {
		sc = s < 0
		s = extent - o
	}
	if s > extent-o {
		s, sc = extent-o, true
	}

	r = res
	if r <= 0 {
		rc = r < 0
		r = s
	}
	if r > s {
		r, rc = s, true
	}
	return o, s, r, oc, sc, rc
}

// LogValue implements slog.LogValuer.
func (g Grid) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("offset", []int{g.Offset.X, g.Offset.Y, g.Offset.Z}),
		slog.Any("size", []int{g.Size.X, g.Size.Y, g.Size.Z}),
		slog.Any("res", []int{g.Res.X, g.Res.Y, g.Res.Z}),
	)
}

// Span is a half-open range of time indices [From, To).
type Span struct {
	From, To int
}

// AllTime covers every time point of d.
func AllTime(d Dims) Span { return Span{From: 0, To: d.T} }

// TimePoint covers the single time index t.
func TimePoint(t int) Span { return Span{From: t, To: t + 1} }

// Len returns the number of time points in the span.
func (s Span) Len() int {
	if s.To < s.From {
		return 0
	}
	return s.To - s.From
}

func (s Span) clamp(d Dims) Span {
	if s.From < 0 {
		s.From = 0
	}
	if s.To > d.T {
		s.To = d.T
	}
	return s
}
