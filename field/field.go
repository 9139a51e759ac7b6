// Package field holds the dense time-varying scalar volume and the passes
// that read it: normalization range estimation and resampling onto a
// render grid.
package field

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrEmptyField is returned when any dimension is zero or negative.
	ErrEmptyField = errors.New("field: every dimension must be positive")
	// ErrShape is returned when the sample slice does not match the dimensions.
	ErrShape = errors.New("field: sample count does not match dimensions")
)

// Dims are the four extents of a field: time points and X/Y/Z voxels.
type Dims struct {
	T, X, Y, Z int
}

// Valid reports whether every extent is positive.
func (d Dims) Valid() bool {
	return d.T > 0 && d.X > 0 && d.Y > 0 && d.Z > 0
}

// Voxels returns the number of samples in one time point.
func (d Dims) Voxels() int { return d.X * d.Y * d.Z }

// Len returns the total number of samples.
func (d Dims) Len() int { return d.T * d.Voxels() }

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", d.T, d.X, d.Y, d.Z)
}

// Field is an immutable 4-D array of float32 samples indexed (t, x, y, z).
// Storage is x fastest, then y, z and t, matching the frame files written by
// the converter.
type Field struct {
	dims Dims
	data []float32
}

// New copies data into a new field. data must hold exactly dims.Len() samples.
func New(dims Dims, data []float32) (*Field, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: got %s", ErrEmptyField, dims)
	}
	if len(data) != dims.Len() {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrShape, dims.Len(), len(data))
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return &Field{dims: dims, data: buf}, nil
}

// NewZero creates a field with every sample set to 0.
func NewZero(dims Dims) (*Field, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: got %s", ErrEmptyField, dims)
	}
	return &Field{dims: dims, data: make([]float32, dims.Len())}, nil
}

// FromFunc builds a field by evaluating fn at every coordinate.
func FromFunc(dims Dims, fn func(t, x, y, z int) float32) (*Field, error) {
	f, err := NewZero(dims)
	if err != nil {
		return nil, err
	}
	i := 0
	for t := 0; t < dims.T; t++ {
		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				for x := 0; x < dims.X; x++ {
					f.data[i] = fn(t, x, y, z)
					i++
				}
			}
		}
	}
	return f, nil
}

// Dims returns the field extents.
func (f *Field) Dims() Dims { return f.dims }

func (f *Field) index(t, x, y, z int) int {
	d := f.dims
	return ((t*d.Z+z)*d.Y+y)*d.X + x
}

func (f *Field) inBounds(t, x, y, z int) bool {
	d := f.dims
	return t >= 0 && t < d.T &&
		x >= 0 && x < d.X &&
		y >= 0 && y < d.Y &&
		z >= 0 && z < d.Z
}

// At returns the sample at (t, x, y, z), or 0 when any coordinate is out of
// range. Neighborhood loops rely on this and skip their own bounds checks.
func (f *Field) At(t, x, y, z int) float32 {
	if !f.inBounds(t, x, y, z) {
		return 0
	}
	return f.data[f.index(t, x, y, z)]
}

// TimeSeries returns a fresh slice with the T samples of one voxel.
func (f *Field) TimeSeries(x, y, z int) []float32 {
	out := make([]float32, f.dims.T)
	if !f.inBounds(0, x, y, z) {
		return out
	}
	stride := f.dims.Voxels()
	i := f.index(0, x, y, z)
	for t := range out {
		out[t] = f.data[i]
		i += stride
	}
	return out
}

// TimeSlice returns a fresh copy of one time point (X*Y*Z samples, x fastest).
// Out-of-range t yields an all-zero slice.
func (f *Field) TimeSlice(t int) []float32 {
	out := make([]float32, f.dims.Voxels())
	if t < 0 || t >= f.dims.T {
		return out
	}
	copy(out, f.frame(t))
	return out
}

// frame aliases the storage of one time point. Package internal only.
func (f *Field) frame(t int) []float32 {
	n := f.dims.Voxels()
	return f.data[t*n : (t+1)*n]
}

// LogValue implements slog.LogValuer.
func (f *Field) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("t", f.dims.T),
		slog.Int("x", f.dims.X),
		slog.Int("y", f.dims.Y),
		slog.Int("z", f.dims.Z),
	)
}
