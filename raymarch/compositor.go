package raymarch

import (
	"image/color"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/volume"
)

// Params control the march. Zero fields fall back to DefaultParams.
type Params struct {
	StepSize       float32 // unit-cube distance between samples
	MaxSteps       int
	IntensityScale float32 // sample alpha is multiplied by StepSize*IntensityScale
	EarlyExitAlpha float32 // stop once accumulated alpha exceeds this
	MinOpacity     float32 // transfer alphas below this are skipped
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		StepSize:       0.01,
		MaxSteps:       256,
		IntensityScale: 20,
		EarlyExitAlpha: 0.95,
		MinOpacity:     0.01,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if !(p.StepSize > 0) {
		p.StepSize = d.StepSize
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = d.MaxSteps
	}
	if !(p.IntensityScale > 0) {
		p.IntensityScale = d.IntensityScale
	}
	if !(p.EarlyExitAlpha > 0) || p.EarlyExitAlpha > 1 {
		p.EarlyExitAlpha = d.EarlyExitAlpha
	}
	if p.MinOpacity < 0 {
		p.MinOpacity = 0
	}
	return p
}

// Pixel is an accumulated color, premultiplied by A.
type Pixel struct {
	R, G, B, A float32
}

// RGBA converts to Go's premultiplied 8-bit color.
func (p Pixel) RGBA() color.RGBA {
	return color.RGBA{R: to8(p.R), G: to8(p.G), B: to8(p.B), A: to8(p.A)}
}

func to8(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Compositor marches rays through a buffer with a transfer function.
type Compositor struct {
	params   Params
	transfer transfer.Function
}

// NewCompositor creates a compositor. Invalid parameters are replaced by
// their defaults.
func NewCompositor(p Params, tf transfer.Function) *Compositor {
	return &Compositor{params: p.withDefaults(), transfer: tf}
}

// Params returns the effective parameters.
func (c *Compositor) Params() Params { return c.params }

// SetParams replaces the parameters; they apply from the next March.
func (c *Compositor) SetParams(p Params) { c.params = p.withDefaults() }

// Transfer returns the transfer function.
func (c *Compositor) Transfer() transfer.Function { return c.transfer }

// SetTransfer replaces the transfer function.
func (c *Compositor) SetTransfer(tf transfer.Function) { c.transfer = tf }

// Steps returns how many samples a segment of the given length receives.
func (c *Compositor) Steps(length float32) int {
	n := int(math32.Floor(length / c.params.StepSize))
	if n > c.params.MaxSteps {
		n = c.params.MaxSteps
	}
	if n < 0 {
		n = 0
	}
	return n
}

// March composites buf front to back along the ray o + t*d, both in
// unit-cube space. A nil buffer, a zero direction or a miss give a fully
// transparent pixel.
func (c *Compositor) March(buf *volume.Buffer, o, d mgl32.Vec3) Pixel {
	if buf == nil {
		return Pixel{}
	}
	l := d.Len()
	if !(l > 0) {
		return Pixel{}
	}
	d = d.Mul(1 / l)

	tNear, tFar, hit := IntersectUnitCube(o, d)
	if !hit {
		return Pixel{}
	}
	if tNear < 0 {
		tNear = 0
	}

	p := c.params
	steps := c.Steps(tFar - tNear)
	scale := p.StepSize * p.IntensityScale

	var out Pixel
	for i := 0; i < steps; i++ {
		t := tNear + (float32(i)+0.5)*p.StepSize
		v := buf.Sample(o[0]+d[0]*t, o[1]+d[1]*t, o[2]+d[2]*t)

		a := c.transfer.Alpha(v)
		if a < p.MinOpacity || a <= 0 {
			continue
		}
		col, _ := c.transfer.Apply(v)
		a *= scale
		if a > 1 {
			a = 1
		}

		w := a * (1 - out.A)
		out.R += col.R * w
		out.G += col.G * w
		out.B += col.B * w
		out.A += w
		if out.A > p.EarlyExitAlpha {
			break
		}
	}
	return out
}
