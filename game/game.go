// Package game is the interactive raylib host: it owns the window-side
// resources, feeds input to a viewer session and draws its frames.
package game

import (
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/renderer"
	"github.com/pthm-cable/fieldview/telemetry"
	"github.com/pthm-cable/fieldview/ui"
	"github.com/pthm-cable/fieldview/viewer"
)

// Mouse sensitivity in radians per pixel of drag.
const orbitSensitivity = 0.006

const controlsLegend = "[Space] Play/Pause  [</>] Step  [Up/Down] Speed  [Drag] Orbit  [Wheel] Zoom  [T] Scheme  [Tab] Settings  [P] Perf  [S] Slices  [Home] Reset"

// Game holds the interactive host state.
type Game struct {
	session *viewer.Session

	// Rendering
	frame    *renderer.FrameTexture
	backdrop *renderer.Backdrop
	slices   *renderer.SlicePreview

	// UI
	hud       *ui.HUD
	perfPanel *ui.PerfPanel
	settings  *ui.SettingsPanel
	values    ui.Settings

	// State
	composited bool
	coverage   float64
	dragging   bool
	showPerf   bool
	showSlices bool
	snapshots  int

	screenWidth, screenHeight float32
}

// NewGame creates the host for session. The raylib window must exist.
func NewGame(session *viewer.Session) *Game {
	cfg := session.Config()
	w, h := int32(cfg.Screen.Width), int32(cfg.Screen.Height)
	g := &Game{
		session:      session,
		frame:        renderer.NewFrameTexture(w, h),
		backdrop:     renderer.NewBackdrop(w, h, 24, 30, 44),
		slices:       renderer.NewSlicePreview(),
		hud:          ui.NewHUD(),
		perfPanel:    ui.NewPerfPanel(w-250, h-200),
		settings:     ui.NewSettingsPanel(),
		showSlices:   true,
		screenWidth:  float32(w),
		screenHeight: float32(h),
	}
	g.syncSettings()
	return g
}

// syncSettings copies the session's current values into the settings panel.
func (g *Game) syncSettings() {
	p := g.session.Compositor().Params()
	pb := g.session.Playback()
	g.values = ui.Settings{
		IntensityScale: p.IntensityScale,
		StepSize:       p.StepSize,
		Speed:          float32(pb.Speed()),
		Scrub:          float32(pb.Fraction()),
		Scheme:         g.session.Config().Transfer.Scheme,
		Playing:        pb.Playing(),
	}
}

// Update advances the session by the frame time and handles input.
func (g *Game) Update() {
	dt := float64(rl.GetFrameTime())
	if g.session.Update(dt) {
		g.composited = true
	}
	g.session.Perf().StartPhase(telemetry.PhaseInput)
	g.handleInput()
}

// setScheme switches to a named transfer scheme.
func (g *Game) setScheme(name string) {
	cfg := g.session.Config()
	prev := cfg.Transfer.Scheme
	cfg.Transfer.Scheme = name
	if err := cfg.Refresh(); err != nil {
		slog.Warn("scheme not applied", "scheme", name, "error", err)
		cfg.Transfer.Scheme = prev
		return
	}
	g.session.SetTransfer(cfg.Derived.Transfer)
	g.values.Scheme = name
	slog.Info("transfer scheme", "scheme", name)
}

// applyRender pushes the panel's render values to the compositor.
func (g *Game) applyRender() {
	p := g.session.Compositor().Params()
	p.IntensityScale = g.values.IntensityScale
	p.StepSize = g.values.StepSize
	g.session.SetRenderParams(p)
}

// saveSnapshot writes the current frame as a PNG into the output directory,
// or the working directory when none is configured.
func (g *Game) saveSnapshot() {
	name := fmt.Sprintf("frame_%03d_t%03d.png", g.snapshots, g.session.Playback().Index())
	path := g.session.Output().Path(name)
	if path == "" {
		path = name
	}
	if err := g.session.WritePNG(path); err != nil {
		slog.Error("snapshot failed", "error", err)
		return
	}
	g.snapshots++
	slog.Info("snapshot saved", "path", path)
}

// Unload frees GPU resources. The session is owned by the caller.
func (g *Game) Unload() {
	g.frame.Unload()
	g.slices.Unload()
}
