package game

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/ui"
)

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	// Window resize propagation
	g.handleResize()

	// Fullscreen toggle
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}

	// Panels
	if rl.IsKeyPressed(rl.KeyTab) {
		if g.settings.Toggle() {
			g.syncSettings()
		}
	}
	if rl.IsKeyPressed(rl.KeyP) {
		g.showPerf = !g.showPerf
	}
	if rl.IsKeyPressed(rl.KeyS) {
		g.showSlices = !g.showSlices
	}
	if rl.IsKeyPressed(rl.KeyT) {
		g.setScheme(ui.NextScheme(g.values.Scheme))
	}
	if rl.IsKeyPressed(rl.KeyF2) {
		g.saveSnapshot()
	}

	g.handlePlaybackInput()
	g.handleCameraInput()
}

// handleResize checks for window resize and propagates new dimensions.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w := float32(rl.GetScreenWidth())
	h := float32(rl.GetScreenHeight())
	if w == g.screenWidth && h == g.screenHeight {
		return
	}
	g.screenWidth = w
	g.screenHeight = h

	g.session.Resize(w, h)
	g.frame.Resize(w, h)
	g.backdrop.Resize(w, h)
	g.perfPanel.SetPosition(int32(w)-250, int32(h)-200)
}

// Speed multiplier bounds for the arrow keys.
const (
	minSpeed = 0.125
	maxSpeed = 16
)

// handlePlaybackInput maps keys onto the playback controller. Controls that
// need a live buffer are ignored until the first one is built.
func (g *Game) handlePlaybackInput() {
	pb := g.session.Playback()
	var err error

	if rl.IsKeyPressed(rl.KeySpace) {
		err = pb.Toggle()
	}
	if rl.IsKeyPressed(rl.KeyRight) || rl.IsKeyPressed(rl.KeyPeriod) {
		err = pb.Step(1)
	}
	if rl.IsKeyPressed(rl.KeyLeft) || rl.IsKeyPressed(rl.KeyComma) {
		err = pb.Step(-1)
	}
	if rl.IsKeyPressed(rl.KeyUp) {
		pb.SetSpeed(min(pb.Speed()*2, maxSpeed))
	}
	if rl.IsKeyPressed(rl.KeyDown) {
		pb.SetSpeed(max(pb.Speed()/2, minSpeed))
	}
	if err != nil {
		slog.Debug("playback input ignored", "state", pb.State(), "error", err)
	}
}

// handleCameraInput processes orbit and zoom controls.
func (g *Game) handleCameraInput() {
	cam := g.session.Camera()
	mouse := rl.GetMousePosition()

	if rl.IsMouseButtonPressed(rl.MouseButtonLeft) {
		g.dragging = !g.settings.Contains(mouse.X, mouse.Y, g.screenWidth)
	}
	if rl.IsMouseButtonReleased(rl.MouseButtonLeft) {
		g.dragging = false
	}
	if g.dragging {
		d := rl.GetMouseDelta()
		cam.Rotate(-d.X*orbitSensitivity, d.Y*orbitSensitivity)
	}

	// Zoom controls: mouse wheel or +/- keys
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		cam.ZoomBy(1 + wheel*0.1)
	}
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		cam.ZoomBy(0.8)
	}

	// Home key to reset camera
	if rl.IsKeyPressed(rl.KeyHome) {
		cam.Reset()
	}
}
