package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fieldview/camera"
)

// Backdrop draws a vertical gradient behind the volume and the outline of
// the volume box in front of it.
type Backdrop struct {
	top, bottom rl.Color
	outline     rl.Color

	screenW, screenH float32
}

// NewBackdrop creates a backdrop fading from base at the top to black.
func NewBackdrop(screenW, screenH int32, baseR, baseG, baseB uint8) *Backdrop {
	return &Backdrop{
		top:     rl.Color{R: baseR, G: baseG, B: baseB, A: 255},
		bottom:  rl.Color{R: baseR / 4, G: baseG / 4, B: baseB / 4, A: 255},
		outline: rl.Color{R: 255, G: 255, B: 255, A: 60},
		screenW: float32(screenW),
		screenH: float32(screenH),
	}
}

// Resize updates the screen dimensions.
func (b *Backdrop) Resize(w, h float32) {
	b.screenW = w
	b.screenH = h
}

// Draw fills the screen with the gradient.
func (b *Backdrop) Draw() {
	rl.DrawRectangleGradientV(0, 0, int32(b.screenW), int32(b.screenH), b.top, b.bottom)
}

// DrawBounds outlines the volume box as seen from cam.
func (b *Backdrop) DrawBounds(cam *camera.Orbit) {
	rl.BeginMode3D(Camera3D(cam))
	rl.DrawCubeWiresV(rl.NewVector3(0, 0, 0), rl.NewVector3(cam.Extent[0], cam.Extent[1], cam.Extent[2]), b.outline)
	rl.EndMode3D()
}

// Camera3D converts an orbit camera into the equivalent raylib camera.
func Camera3D(cam *camera.Orbit) rl.Camera3D {
	eye := cam.Eye()
	return rl.Camera3D{
		Position:   rl.NewVector3(eye[0], eye[1], eye[2]),
		Target:     rl.NewVector3(0, 0, 0),
		Up:         rl.NewVector3(0, 1, 0),
		Fovy:       mgl32.RadToDeg(cam.FovY),
		Projection: rl.CameraPerspective,
	}
}
