// Package volume builds the normalized render buffer for one time point of a
// field, incrementally across frames, and keeps the last complete buffer
// live for the compositor.
package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/fieldview/field"
)

// Layout selects how the render grid is packed in memory.
type Layout int

const (
	// Volume3D stores cells x fastest, then y, then z.
	Volume3D Layout = iota
	// Atlas2D tiles the z slices into a near-square 2-D image, for hosts that
	// can only upload 2-D textures.
	Atlas2D
)

func (l Layout) String() string {
	switch l {
	case Volume3D:
		return "volume"
	case Atlas2D:
		return "atlas"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout accepts "volume" or "atlas".
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "volume":
		return Volume3D, nil
	case "atlas":
		return Atlas2D, nil
	}
	return Volume3D, fmt.Errorf("volume: unknown layout %q", s)
}

// Buffer is a complete render buffer: one normalized value in [0, 1] per
// render-grid cell, tagged with the time point and range it was built from.
// A Buffer handed out by Builder.Live is never written again.
type Buffer struct {
	Layout Layout
	Grid   field.Grid
	Res    field.Vec3i
	Time   int
	Range  field.Range
	Values []float32

	// Width and Height of the packed image. For Volume3D this is
	// Res.X by Res.Y*Res.Z (slices stacked vertically).
	Width, Height int
	tilesX        int
}

func newBuffer(layout Layout, grid field.Grid, t int) *Buffer {
	b := &Buffer{Layout: layout, Grid: grid, Res: grid.Res, Time: t}
	switch layout {
	case Atlas2D:
		b.tilesX = int(math.Ceil(math.Sqrt(float64(grid.Res.Z))))
		tilesY := (grid.Res.Z + b.tilesX - 1) / b.tilesX
		b.Width = b.tilesX * grid.Res.X
		b.Height = tilesY * grid.Res.Y
	default:
		b.tilesX = 1
		b.Width = grid.Res.X
		b.Height = grid.Res.Y * grid.Res.Z
	}
	b.Values = make([]float32, b.Width*b.Height)
	return b
}

// Cells returns the number of render-grid cells.
func (b *Buffer) Cells() int { return b.Res.Product() }

// Index returns the storage index of cell (x, y, z).
func (b *Buffer) Index(x, y, z int) int {
	if b.Layout == Atlas2D {
		tx := z % b.tilesX
		ty := z / b.tilesX
		return (ty*b.Res.Y+y)*b.Width + tx*b.Res.X + x
	}
	return (z*b.Res.Y+y)*b.Res.X + x
}

// At returns the value of cell (x, y, z), or 0 outside the grid.
func (b *Buffer) At(x, y, z int) float32 {
	if x < 0 || y < 0 || z < 0 || x >= b.Res.X || y >= b.Res.Y || z >= b.Res.Z {
		return 0
	}
	return b.Values[b.Index(x, y, z)]
}

// Sample returns the nearest cell for a position in unit-cube coordinates.
func (b *Buffer) Sample(u, v, w float32) float32 {
	return b.At(cellOf(u, b.Res.X), cellOf(v, b.Res.Y), cellOf(w, b.Res.Z))
}

func cellOf(u float32, n int) int {
	i := int(u * float32(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Stats returns the mean and maximum cell value.
func (b *Buffer) Stats() (mean, max float64) {
	n := b.Cells()
	if n == 0 {
		return 0, 0
	}
	vals := make([]float64, 0, n)
	for z := 0; z < b.Res.Z; z++ {
		for y := 0; y < b.Res.Y; y++ {
			for x := 0; x < b.Res.X; x++ {
				vals = append(vals, float64(b.Values[b.Index(x, y, z)]))
			}
		}
	}
	return floats.Sum(vals) / float64(n), floats.Max(vals)
}
