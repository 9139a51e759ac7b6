package field

import "fmt"

// pscEpsilon keeps percent-signal-change finite over a zero baseline.
const pscEpsilon = 1e-6

// TimeMean returns a single-time-point field holding the mean of every voxel
// over time (the "anatomy" volume). Non-finite samples are skipped.
func (f *Field) TimeMean() *Field {
	d := f.dims
	out := &Field{
		dims: Dims{T: 1, X: d.X, Y: d.Y, Z: d.Z},
		data: make([]float32, d.Voxels()),
	}
	counts := make([]int32, d.Voxels())
	sums := make([]float64, d.Voxels())
	for t := 0; t < d.T; t++ {
		for i, v := range f.frame(t) {
			if finite(v) {
				sums[i] += float64(v)
				counts[i]++
			}
		}
	}
	for i := range out.data {
		if counts[i] > 0 {
			out.data[i] = float32(sums[i] / float64(counts[i]))
		}
	}
	return out
}

// Baseline selects the per-voxel reference for percent signal change.
type Baseline int

const (
	BaselineFirstN Baseline = iota // mean of the first N time points
	BaselineMean                   // mean over every time point
)

// ParseBaseline maps a config name to a Baseline.
func ParseBaseline(s string) (Baseline, error) {
	switch s {
	case "", "first_n":
		return BaselineFirstN, nil
	case "mean":
		return BaselineMean, nil
	}
	return 0, fmt.Errorf("unknown baseline %q", s)
}

// PercentSignalChange returns a field of the same shape where each sample is
// the percent change from a per-voxel baseline, mapped into [0, 1] so that
// -rangePct..+rangePct spans the unit interval (0.5 = no change). With
// BaselineFirstN the baseline is the mean of the first baselineN time points
// (at least one); with BaselineMean it is the mean over all of them.
func (f *Field) PercentSignalChange(b Baseline, baselineN int, rangePct float32) *Field {
	d := f.dims
	if b == BaselineMean {
		baselineN = d.T
	}
	if baselineN < 1 {
		baselineN = 1
	}
	if baselineN > d.T {
		baselineN = d.T
	}
	if rangePct <= 0 {
		rangePct = 5
	}

	base := make([]float64, d.Voxels())
	for t := 0; t < baselineN; t++ {
		for i, v := range f.frame(t) {
			if finite(v) {
				base[i] += float64(v)
			}
		}
	}
	for i := range base {
		base[i] /= float64(baselineN)
	}

	out := &Field{dims: d, data: make([]float32, d.Len())}
	n := d.Voxels()
	for t := 0; t < d.T; t++ {
		src := f.frame(t)
		dst := out.data[t*n : (t+1)*n]
		for i, v := range src {
			if !finite(v) {
				dst[i] = 0.5
				continue
			}
			psc := 100 * (float64(v) - base[i]) / (base[i] + pscEpsilon)
			u := (psc + float64(rangePct)) / (2 * float64(rangePct))
			if u < 0 {
				u = 0
			} else if u > 1 {
				u = 1
			}
			dst[i] = float32(u)
		}
	}
	return out
}

// CropToSignal cuts the field down to the bounding box of the voxels whose
// time mean exceeds thresh, then pads pad zero voxels on every side of each
// axis. The second result is false, and f is returned, when no voxel crosses
// the threshold.
func (f *Field) CropToSignal(thresh float32, pad int) (*Field, bool) {
	d := f.dims
	mean := f.TimeMean().data
	lo := Vec3i{X: d.X, Y: d.Y, Z: d.Z}
	hi := Vec3i{X: -1, Y: -1, Z: -1}
	i := 0
	for z := 0; z < d.Z; z++ {
		for y := 0; y < d.Y; y++ {
			for x := 0; x < d.X; x++ {
				if mean[i] > thresh {
					lo = Vec3i{X: min(lo.X, x), Y: min(lo.Y, y), Z: min(lo.Z, z)}
					hi = Vec3i{X: max(hi.X, x), Y: max(hi.Y, y), Z: max(hi.Z, z)}
				}
				i++
			}
		}
	}
	if hi.X < 0 {
		return f, false
	}
	pad = max(pad, 0)
	od := Dims{
		T: d.T,
		X: hi.X - lo.X + 1 + 2*pad,
		Y: hi.Y - lo.Y + 1 + 2*pad,
		Z: hi.Z - lo.Z + 1 + 2*pad,
	}
	out := &Field{dims: od, data: make([]float32, od.Len())}
	for t := 0; t < d.T; t++ {
		for z := lo.Z; z <= hi.Z; z++ {
			for y := lo.Y; y <= hi.Y; y++ {
				src := f.index(t, lo.X, y, z)
				dst := out.index(t, pad, y-lo.Y+pad, z-lo.Z+pad)
				copy(out.data[dst:dst+hi.X-lo.X+1], f.data[src:src+hi.X-lo.X+1])
			}
		}
	}
	return out, true
}

// Downsample reduces every spatial axis by an integer factor. When all axes
// divide evenly each output voxel is the mean of its factor^3 block;
// otherwise every factor-th voxel is kept.
func (f *Field) Downsample(factor int) *Field {
	d := f.dims
	if factor <= 1 {
		return f
	}
	if d.X%factor == 0 && d.Y%factor == 0 && d.Z%factor == 0 {
		return f.blockMean(factor)
	}
	od := Dims{
		T: d.T,
		X: (d.X + factor - 1) / factor,
		Y: (d.Y + factor - 1) / factor,
		Z: (d.Z + factor - 1) / factor,
	}
	out := &Field{dims: od, data: make([]float32, od.Len())}
	i := 0
	for t := 0; t < od.T; t++ {
		for z := 0; z < od.Z; z++ {
			for y := 0; y < od.Y; y++ {
				for x := 0; x < od.X; x++ {
					out.data[i] = f.data[f.index(t, x*factor, y*factor, z*factor)]
					i++
				}
			}
		}
	}
	return out
}

func (f *Field) blockMean(factor int) *Field {
	d := f.dims
	od := Dims{T: d.T, X: d.X / factor, Y: d.Y / factor, Z: d.Z / factor}
	out := &Field{dims: od, data: make([]float32, od.Len())}
	i := 0
	for t := 0; t < od.T; t++ {
		for z := 0; z < od.Z; z++ {
			for y := 0; y < od.Y; y++ {
				for x := 0; x < od.X; x++ {
					var sum float64
					n := 0
					for dz := 0; dz < factor; dz++ {
						for dy := 0; dy < factor; dy++ {
							for dx := 0; dx < factor; dx++ {
								v := f.data[f.index(t, x*factor+dx, y*factor+dy, z*factor+dz)]
								if finite(v) {
									sum += float64(v)
									n++
								}
							}
						}
					}
					if n > 0 {
						out.data[i] = float32(sum / float64(n))
					}
					i++
				}
			}
		}
	}
	return out
}
