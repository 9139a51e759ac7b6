package field

import (
	"errors"
	"math"
	"testing"
)

func sequentialField(t *testing.T, dims Dims) *Field {
	t.Helper()
	f, err := FromFunc(dims, func(ti, x, y, z int) float32 {
		return float32(ti*1000 + z*100 + y*10 + x)
	})
	if err != nil {
		t.Fatalf("FromFunc: %v", err)
	}
	return f
}

func TestAtRoundTrip(t *testing.T) {
	dims := Dims{T: 3, X: 4, Y: 5, Z: 2}
	f := sequentialField(t, dims)

	for ti := 0; ti < dims.T; ti++ {
		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				for x := 0; x < dims.X; x++ {
					want := float32(ti*1000 + z*100 + y*10 + x)
					if got := f.At(ti, x, y, z); got != want {
						t.Fatalf("At(%d,%d,%d,%d) = %v, want %v", ti, x, y, z, got, want)
					}
				}
			}
		}
	}
}

func TestAtOutOfRangeReturnsZero(t *testing.T) {
	f := sequentialField(t, Dims{T: 2, X: 2, Y: 2, Z: 2})

	coords := [][4]int{
		{-1, 0, 0, 0}, {2, 0, 0, 0},
		{0, -1, 0, 0}, {0, 2, 0, 0},
		{0, 0, -1, 0}, {0, 0, 2, 0},
		{0, 0, 0, -1}, {0, 0, 0, 2},
		{99, 99, 99, 99},
	}
	for _, c := range coords {
		if got := f.At(c[0], c[1], c[2], c[3]); got != 0 {
			t.Errorf("At%v = %v, want 0", c, got)
		}
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	if _, err := New(Dims{T: 0, X: 1, Y: 1, Z: 1}, nil); !errors.Is(err, ErrEmptyField) {
		t.Errorf("zero T: got %v, want ErrEmptyField", err)
	}
	if _, err := New(Dims{T: 1, X: 2, Y: 2, Z: -1}, nil); !errors.Is(err, ErrEmptyField) {
		t.Errorf("negative Z: got %v, want ErrEmptyField", err)
	}
	if _, err := New(Dims{T: 1, X: 2, Y: 2, Z: 2}, make([]float32, 7)); !errors.Is(err, ErrShape) {
		t.Errorf("short data: got %v, want ErrShape", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	f, err := New(Dims{T: 1, X: 2, Y: 2, Z: 2}, data)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 99
	if f.At(0, 0, 0, 0) != 1 {
		t.Error("field aliases the caller's slice")
	}
}

func TestTimeSeries(t *testing.T) {
	f := sequentialField(t, Dims{T: 4, X: 3, Y: 3, Z: 3})

	series := f.TimeSeries(1, 2, 0)
	if len(series) != 4 {
		t.Fatalf("len = %d, want 4", len(series))
	}
	for ti, v := range series {
		want := float32(ti*1000 + 21)
		if v != want {
			t.Errorf("series[%d] = %v, want %v", ti, v, want)
		}
	}

	series[0] = -1
	if f.At(0, 1, 2, 0) != 21 {
		t.Error("mutating the series changed the field")
	}

	out := f.TimeSeries(5, 0, 0)
	for _, v := range out {
		if v != 0 {
			t.Fatalf("out-of-range series should be zero, got %v", out)
		}
	}
}

func TestTimeSlice(t *testing.T) {
	dims := Dims{T: 2, X: 2, Y: 3, Z: 2}
	f := sequentialField(t, dims)

	slice := f.TimeSlice(1)
	if len(slice) != dims.Voxels() {
		t.Fatalf("len = %d, want %d", len(slice), dims.Voxels())
	}
	// x fastest, then y, then z
	if slice[0] != 1000 || slice[1] != 1001 || slice[2] != 1010 || slice[6] != 1100 {
		t.Errorf("unexpected layout: %v", slice)
	}

	slice[0] = -5
	if f.At(1, 0, 0, 0) != 1000 {
		t.Error("mutating the slice changed the field")
	}

	empty := f.TimeSlice(7)
	for _, v := range empty {
		if v != 0 {
			t.Fatal("out-of-range slice should be zero")
		}
	}
}

func TestGridClamp(t *testing.T) {
	dims := Dims{T: 1, X: 10, Y: 8, Z: 6}

	tests := []struct {
		name    string
		in      Grid
		want    Grid
		changed bool
	}{
		{
			name: "defaults fill the field",
			in:   Grid{},
			want: Grid{Size: Vec3i{10, 8, 6}, Res: Vec3i{10, 8, 6}},
		},
		{
			name: "region inside",
			in:   Grid{Offset: Vec3i{2, 2, 2}, Size: Vec3i{4, 4, 2}, Res: Vec3i{2, 2, 1}},
			want: Grid{Offset: Vec3i{2, 2, 2}, Size: Vec3i{4, 4, 2}, Res: Vec3i{2, 2, 1}},
		},
		{
			name:    "offset past the end",
			in:      Grid{Offset: Vec3i{20, 0, 0}, Size: Vec3i{4, 0, 0}},
			want:    Grid{Offset: Vec3i{9, 0, 0}, Size: Vec3i{1, 8, 6}, Res: Vec3i{1, 8, 6}},
			changed: true,
		},
		{
			name:    "resolution above extent",
			in:      Grid{Res: Vec3i{64, 64, 64}},
			want:    Grid{Size: Vec3i{10, 8, 6}, Res: Vec3i{10, 8, 6}},
			changed: true,
		},
		{
			name:    "negative values",
			in:      Grid{Offset: Vec3i{-3, 0, 0}, Res: Vec3i{-1, 4, 4}},
			want:    Grid{Size: Vec3i{10, 8, 6}, Res: Vec3i{10, 4, 4}},
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.in.Clamp(dims)
			if got != tt.want {
				t.Errorf("Clamp = %+v, want %+v", got, tt.want)
			}
			if changed != tt.changed {
				t.Errorf("changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestTimeMean(t *testing.T) {
	f, err := FromFunc(Dims{T: 4, X: 2, Y: 2, Z: 1}, func(ti, x, y, z int) float32 {
		return float32(ti)
	})
	if err != nil {
		t.Fatal(err)
	}
	mean := f.TimeMean()
	if mean.Dims().T != 1 {
		t.Fatalf("T = %d, want 1", mean.Dims().T)
	}
	for _, v := range mean.TimeSlice(0) {
		if math.Abs(float64(v)-1.5) > 1e-6 {
			t.Errorf("mean = %v, want 1.5", v)
		}
	}
}

func TestPercentSignalChange(t *testing.T) {
	values := []float32{100, 100, 105, 95}
	f, err := FromFunc(Dims{T: 4, X: 1, Y: 1, Z: 1}, func(ti, x, y, z int) float32 {
		return values[ti]
	})
	if err != nil {
		t.Fatal(err)
	}
	psc := f.PercentSignalChange(BaselineFirstN, 2, 5)
	want := []float64{0.5, 0.5, 1.0, 0.0}
	for ti, w := range want {
		if got := float64(psc.At(ti, 0, 0, 0)); math.Abs(got-w) > 1e-4 {
			t.Errorf("psc[%d] = %v, want %v", ti, got, w)
		}
	}
}

func TestPercentSignalChangeMeanBaseline(t *testing.T) {
	values := []float32{90, 110, 105, 95}
	f, err := FromFunc(Dims{T: 4, X: 1, Y: 1, Z: 1}, func(ti, x, y, z int) float32 {
		return values[ti]
	})
	if err != nil {
		t.Fatal(err)
	}
	// Baseline is 100; baselineN is ignored.
	psc := f.PercentSignalChange(BaselineMean, 1, 10)
	want := []float64{0, 1, 0.75, 0.25}
	for ti, w := range want {
		if got := float64(psc.At(ti, 0, 0, 0)); math.Abs(got-w) > 1e-4 {
			t.Errorf("psc[%d] = %v, want %v", ti, got, w)
		}
	}

	tests := []struct {
		name string
		want Baseline
		err  bool
	}{
		{"", BaselineFirstN, false},
		{"first_n", BaselineFirstN, false},
		{"mean", BaselineMean, false},
		{"median", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBaseline(tt.name)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseBaseline(%q) = %v, %v", tt.name, got, err)
		}
	}
}

func TestCropToSignal(t *testing.T) {
	// Signal in x 3..4, y 2, z 1..3; voxel (3,2,1) only lights up at t=1,
	// with a time mean of 0.5.
	dims := Dims{T: 2, X: 8, Y: 6, Z: 5}
	f, err := FromFunc(dims, func(ti, x, y, z int) float32 {
		if x == 3 && y == 2 && z == 1 {
			return float32(ti)
		}
		if x >= 3 && x <= 4 && y == 2 && z >= 1 && z <= 3 {
			return 1
		}
		return 0.01
	})
	if err != nil {
		t.Fatal(err)
	}

	c, ok := f.CropToSignal(0.05, 2)
	if !ok {
		t.Fatal("expected a crop")
	}
	if c.Dims() != (Dims{T: 2, X: 6, Y: 5, Z: 7}) {
		t.Fatalf("dims = %v, want 2x6x5x7", c.Dims())
	}
	if got := c.At(1, 2, 2, 2); got != 1 {
		t.Errorf("corner of the box = %v, want 1", got)
	}
	if got := c.At(0, 2, 2, 2); got != 0 {
		t.Errorf("t=0 sample = %v, want 0", got)
	}
	if got := c.At(0, 3, 2, 4); got != 1 {
		t.Errorf("inner sample = %v, want 1", got)
	}
	if got := c.At(0, 0, 0, 0); got != 0 {
		t.Errorf("padding = %v, want 0", got)
	}

	if same, ok := f.CropToSignal(5, 2); ok || same != f {
		t.Error("no voxel above threshold should leave the field as is")
	}
}

func TestDownsampleBlockMean(t *testing.T) {
	f, err := FromFunc(Dims{T: 1, X: 4, Y: 4, Z: 4}, func(ti, x, y, z int) float32 {
		return float32(x / 2)
	})
	if err != nil {
		t.Fatal(err)
	}
	d := f.Downsample(2)
	if d.Dims() != (Dims{T: 1, X: 2, Y: 2, Z: 2}) {
		t.Fatalf("dims = %v", d.Dims())
	}
	if d.At(0, 0, 0, 0) != 0 || d.At(0, 1, 1, 1) != 1 {
		t.Errorf("unexpected block means: %v", d.TimeSlice(0))
	}
}

func TestDownsampleStrideFallback(t *testing.T) {
	f := sequentialField(t, Dims{T: 1, X: 5, Y: 3, Z: 3})
	d := f.Downsample(2)
	if d.Dims() != (Dims{T: 1, X: 3, Y: 2, Z: 2}) {
		t.Fatalf("dims = %v", d.Dims())
	}
	if got := d.At(0, 2, 1, 1); got != f.At(0, 4, 2, 2) {
		t.Errorf("stride sample = %v, want %v", got, f.At(0, 4, 2, 2))
	}
}
