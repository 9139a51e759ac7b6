package loader

import (
	"fmt"
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/fieldview/field"
)

// Synthetic generates an animated test field: a soft spherical blob whose
// interior is modulated by 4-D simplex noise, so structure drifts over time.
type Synthetic struct {
	Dims  field.Dims
	Seed  int64
	Scale float64 // spatial noise frequency in voxels; default 0.12
	Drift float64 // noise advance per time point; default 0.15
	TR    float64
}

// DefaultSyntheticDims is used when no dimensions are configured.
var DefaultSyntheticDims = field.Dims{T: 24, X: 48, Y: 48, Z: 32}

// Load implements Source.
func (s *Synthetic) Load() (*field.Field, Info, error) {
	dims := s.Dims
	if !dims.Valid() {
		dims = DefaultSyntheticDims
	}
	scale, drift := s.Scale, s.Drift
	if !(scale > 0) {
		scale = 0.12
	}
	if !(drift > 0) {
		drift = 0.15
	}

	noise := opensimplex.NewNormalized32(s.Seed)
	cx, cy, cz := float64(dims.X-1)/2, float64(dims.Y-1)/2, float64(dims.Z-1)/2
	rx, ry, rz := math.Max(cx, 1), math.Max(cy, 1), math.Max(cz, 1)

	f, err := field.FromFunc(dims, func(t, x, y, z int) float32 {
		dx := (float64(x) - cx) / rx
		dy := (float64(y) - cy) / ry
		dz := (float64(z) - cz) / rz
		r := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if r >= 1 {
			return 0
		}
		falloff := float32(1 - r*r)
		n := noise.Eval4(
			float32(float64(x)*scale),
			float32(float64(y)*scale),
			float32(float64(z)*scale),
			float32(float64(t)*drift),
		)
		return falloff * n * 1000
	})
	if err != nil {
		return nil, Info{}, fmt.Errorf("synthetic field: %w", err)
	}

	info := Info{
		Name:      fmt.Sprintf("synthetic-%d", s.Seed),
		Dims:      dims,
		TR:        s.TR,
		VoxelSize: [3]float32{1, 1, 1},
	}
	if !(info.TR > 0) {
		info.TR = DefaultTR
	}
	return f, info, nil
}
