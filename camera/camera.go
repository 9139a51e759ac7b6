// Package camera provides an orbit camera around the rendered volume and
// converts screen pixels into rays in the volume's unit-cube space.
package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const maxPitch = 89 * math32.Pi / 180

// Orbit circles the volume center. The volume occupies a box of size Extent
// centered on the world origin; unit-cube coordinates map [0,1]^3 onto it.
//
// Mutating methods recompute the cached matrices, so Ray is read-only and
// safe to call from several goroutines between mutations.
type Orbit struct {
	// Yaw and Pitch in radians. Pitch is clamped to +-89 degrees.
	Yaw, Pitch float32

	// Distance from the volume center, clamped to [MinDistance, MaxDistance].
	Distance, MinDistance, MaxDistance float32

	// Vertical field of view in radians.
	FovY float32

	// Viewport dimensions (screen size).
	ViewportW, ViewportH float32

	// Extent is the world-space size of the volume box.
	Extent mgl32.Vec3

	eye      mgl32.Vec3
	invVP    mgl32.Mat4
	invModel mgl32.Mat4
	revision uint64
}

// New creates a camera looking at a volume of the given world extent from a
// distance that fits it in view.
func New(viewportW, viewportH float32, extent mgl32.Vec3) *Orbit {
	radius := extent.Len() / 2
	if !(radius > 0) {
		extent = mgl32.Vec3{1, 1, 1}
		radius = extent.Len() / 2
	}
	c := &Orbit{
		Yaw:         0.6,
		Pitch:       0.35,
		Distance:    radius * 3,
		MinDistance: radius * 1.05,
		MaxDistance: radius * 12,
		FovY:        mgl32.DegToRad(45),
		ViewportW:   viewportW,
		ViewportH:   viewportH,
		Extent:      extent,
	}
	c.recompute()
	return c
}

// Eye returns the camera position in world space.
func (c *Orbit) Eye() mgl32.Vec3 { return c.eye }

// Revision increases whenever the view changes. Callers compare it to decide
// whether a new frame has to be composited.
func (c *Orbit) Revision() uint64 { return c.revision }

func (c *Orbit) recompute() {
	c.Pitch = clamp(c.Pitch, -maxPitch, maxPitch)
	c.Distance = clamp(c.Distance, c.MinDistance, c.MaxDistance)

	cp := math32.Cos(c.Pitch)
	c.eye = mgl32.Vec3{
		c.Distance * cp * math32.Sin(c.Yaw),
		c.Distance * math32.Sin(c.Pitch),
		c.Distance * cp * math32.Cos(c.Yaw),
	}

	aspect := float32(1)
	if c.ViewportH > 0 {
		aspect = c.ViewportW / c.ViewportH
	}
	view := mgl32.LookAtV(c.eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(c.FovY, aspect, 0.01, c.MaxDistance*4)
	c.invVP = proj.Mul4(view).Inv()

	model := mgl32.Translate3D(-c.Extent[0]/2, -c.Extent[1]/2, -c.Extent[2]/2).
		Mul4(mgl32.Scale3D(c.Extent[0], c.Extent[1], c.Extent[2]))
	c.invModel = model.Inv()
	c.revision++
}

// Ray returns the ray through pixel (px, py) of a w×h image, in unit-cube
// space. The direction is not normalized.
func (c *Orbit) Ray(px, py float32, w, h int) (origin, dir mgl32.Vec3) {
	nx := 2*px/float32(w) - 1
	ny := 1 - 2*py/float32(h)
	near := mgl32.TransformCoordinate(mgl32.Vec3{nx, ny, -1}, c.invVP)
	far := mgl32.TransformCoordinate(mgl32.Vec3{nx, ny, 1}, c.invVP)

	origin = mgl32.TransformCoordinate(c.eye, c.invModel)
	dir = mgl32.TransformNormal(far.Sub(near), c.invModel)
	return origin, dir
}

// ToUnit converts a world-space point into unit-cube coordinates.
func (c *Orbit) ToUnit(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.TransformCoordinate(p, c.invModel)
}

// Rotate orbits by the given yaw and pitch deltas in radians.
func (c *Orbit) Rotate(dYaw, dPitch float32) {
	if dYaw == 0 && dPitch == 0 {
		return
	}
	c.Yaw = math32.Mod(c.Yaw+dYaw, 2*math32.Pi)
	c.Pitch += dPitch
	c.recompute()
}

// SetDistance sets the orbit distance, clamped to min/max.
func (c *Orbit) SetDistance(d float32) {
	c.Distance = d
	c.recompute()
}

// ZoomBy divides the distance by factor, so factor > 1 moves closer.
func (c *Orbit) ZoomBy(factor float32) {
	if !(factor > 0) {
		return
	}
	c.SetDistance(c.Distance / factor)
}

// Resize updates viewport dimensions.
func (c *Orbit) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.recompute()
}

// SetExtent changes the world-space size of the volume box and rescales the
// distance limits to match.
func (c *Orbit) SetExtent(extent mgl32.Vec3) {
	radius := extent.Len() / 2
	if !(radius > 0) {
		return
	}
	scale := radius / (c.Extent.Len() / 2)
	c.Extent = extent
	c.MinDistance = radius * 1.05
	c.MaxDistance = radius * 12
	c.Distance *= scale
	c.recompute()
}

// Reset returns to the default viewpoint.
func (c *Orbit) Reset() {
	d := New(c.ViewportW, c.ViewportH, c.Extent)
	rev := c.revision
	*c = *d
	c.revision = rev + 1
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
