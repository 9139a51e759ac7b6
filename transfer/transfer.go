// Package transfer maps normalized scalar values to color and opacity.
package transfer

import (
	"image/color"
	"sort"
)

// RGB is a linear color with components in [0, 1].
type RGB struct {
	R, G, B float32
}

// Lerp interpolates from c to o by t.
func (c RGB) Lerp(o RGB, t float32) RGB {
	return RGB{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
	}
}

// Scale multiplies every component by s.
func (c RGB) Scale(s float32) RGB {
	return RGB{R: c.R * s, G: c.G * s, B: c.B * s}
}

// Add returns the component-wise sum.
func (c RGB) Add(o RGB) RGB {
	return RGB{R: c.R + o.R, G: c.G + o.G, B: c.B + o.B}
}

// NRGBA converts to an 8-bit non-premultiplied color with the given alpha.
func (c RGB) NRGBA(alpha float32) color.NRGBA {
	return color.NRGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: to8(alpha)}
}

func to8(v float32) uint8 {
	v = clamp01(v)
	return uint8(v*255 + 0.5)
}

func clamp01(v float32) float32 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Function is a linear two-stop transfer function.
type Function struct {
	MinColor, MaxColor RGB
	MinAlpha, MaxAlpha float32

	// UseTransparency selects the MinAlpha..MaxAlpha ramp. When false the
	// opacity is the normalized value itself.
	UseTransparency bool
}

// Apply maps v to a color and opacity. v is clamped to [0, 1] first.
func (f Function) Apply(v float32) (RGB, float32) {
	v = clamp01(v)
	c := f.MinColor.Lerp(f.MaxColor, v)
	if !f.UseTransparency {
		return c, v
	}
	return c, f.MinAlpha + (f.MaxAlpha-f.MinAlpha)*v
}

// Alpha returns only the opacity for v. The compositor uses it to skip empty
// samples before paying for the color lerp.
func (f Function) Alpha(v float32) float32 {
	v = clamp01(v)
	if !f.UseTransparency {
		return v
	}
	return f.MinAlpha + (f.MaxAlpha-f.MinAlpha)*v
}

// Ramp samples the function at n evenly spaced values, for previews and
// legends.
func (f Function) Ramp(n int) []color.NRGBA {
	if n < 2 {
		n = 2
	}
	out := make([]color.NRGBA, n)
	for i := range out {
		c, a := f.Apply(float32(i) / float32(n-1))
		out[i] = c.NRGBA(a)
	}
	return out
}

// Built-in schemes, selectable by name.
var schemes = map[string]Function{
	"grayscale": {
		MinColor: RGB{0, 0, 0}, MaxColor: RGB{1, 1, 1},
		MinAlpha: 0, MaxAlpha: 0.8, UseTransparency: true,
	},
	"heat": {
		MinColor: RGB{0.35, 0, 0}, MaxColor: RGB{1, 0.95, 0.3},
		MinAlpha: 0, MaxAlpha: 0.9, UseTransparency: true,
	},
	"cool": {
		MinColor: RGB{0, 0.05, 0.3}, MaxColor: RGB{0.4, 1, 1},
		MinAlpha: 0, MaxAlpha: 0.9, UseTransparency: true,
	},
	// psc is meant for percent-signal-change volumes, where 0.5 is no change.
	"psc": {
		MinColor: RGB{0.1, 0.3, 1}, MaxColor: RGB{1, 0.2, 0.1},
		MinAlpha: 0.05, MaxAlpha: 0.9, UseTransparency: true,
	},
	"density": {
		MinColor: RGB{1, 1, 1}, MaxColor: RGB{1, 1, 1},
	},
}

// Lookup returns the named scheme.
func Lookup(name string) (Function, bool) {
	f, ok := schemes[name]
	return f, ok
}

// Names returns the built-in scheme names in sorted order.
func Names() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
