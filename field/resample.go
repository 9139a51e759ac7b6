package field

// DefaultWindowRadius gives a 3x3x3 averaging window.
const DefaultWindowRadius = 1

// SourceCenter maps a render-grid cell index onto the source voxel it is
// centered on: floor(cell/res * size) + offset.
func SourceCenter(cell, res, size, offset int) int {
	if res <= 0 {
		return offset
	}
	return offset + (cell*size)/res
}

// ResampleCell returns the box-filtered value for one render-grid cell at
// time t. The (2*radius+1)^3 window around the cell's source center is
// clamped to the grid region; NaN and infinite samples are skipped. A window
// with no finite samples yields 0. g must already be clamped to the field.
func ResampleCell(f *Field, g Grid, t, gx, gy, gz, radius int) float32 {
	if t < 0 || t >= f.dims.T {
		return 0
	}
	if radius < 0 {
		radius = 0
	}
	cx := SourceCenter(gx, g.Res.X, g.Size.X, g.Offset.X)
	cy := SourceCenter(gy, g.Res.Y, g.Size.Y, g.Offset.Y)
	cz := SourceCenter(gz, g.Res.Z, g.Size.Z, g.Offset.Z)

	x0, x1 := window(cx, radius, g.Offset.X, g.Size.X)
	y0, y1 := window(cy, radius, g.Offset.Y, g.Size.Y)
	z0, z1 := window(cz, radius, g.Offset.Z, g.Size.Z)

	frame := f.frame(t)
	d := f.dims
	var sum float64
	n := 0
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			row := (z*d.Y + y) * d.X
			for x := x0; x <= x1; x++ {
				v := frame[row+x]
				if !finite(v) {
					continue
				}
				sum += float64(v)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / float64(n))
}

// window returns the inclusive [lo, hi] span of a radius around c, clamped to
// [offset, offset+size).
func window(c, radius, offset, size int) (lo, hi int) {
	lo, hi = c-radius, c+radius
	if lo < offset {
		lo = offset
	}
	if hi > offset+size-1 {
		hi = offset + size - 1
	}
	return lo, hi
}

// Resample fills dst with the raw (not normalized) box-filtered values of
// every render-grid cell at time t, x fastest. dst is reallocated when it is
// too small. The grid is clamped to the field before use.
func Resample(f *Field, g Grid, t, radius int, dst []float32) []float32 {
	g, _ = g.Clamp(f.dims)
	n := g.Cells()
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	i := 0
	for gz := 0; gz < g.Res.Z; gz++ {
		for gy := 0; gy < g.Res.Y; gy++ {
			for gx := 0; gx < g.Res.X; gx++ {
				dst[i] = ResampleCell(f, g, t, gx, gy, gz, radius)
				i++
			}
		}
	}
	return dst
}
