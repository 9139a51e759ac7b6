package game

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/telemetry"
	"github.com/pthm-cable/fieldview/ui"
)

// Draw uploads a newly composited frame and renders the window.
func (g *Game) Draw() {
	perf := g.session.Perf()

	perf.StartPhase(telemetry.PhaseUpload)
	if g.composited {
		g.frame.Upload(g.session.Image())
		g.coverage = g.session.Image().Coverage()
		g.composited = false
	}
	if g.showSlices {
		g.slices.Update(g.session.Builder().Live(), g.session.Compositor().Transfer())
	}

	perf.StartPhase(telemetry.PhaseDraw)
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	g.backdrop.Draw()
	g.frame.Draw()
	if g.session.Visible() {
		g.backdrop.DrawBounds(g.session.Camera())
	}
	if g.showSlices {
		g.slices.Draw(g.screenWidth-10, g.screenHeight-210, 160)
	}

	data := g.hudData()
	g.hud.Draw(data)
	g.hud.DrawControls(int32(g.screenHeight), controlsLegend)
	if g.showPerf {
		g.perfPanel.Draw(perf.Stats())
	}
	g.drawSettings()

	rl.EndDrawing()

	g.session.EndFrame()
	perf.RecordPresent()
}

// drawSettings runs the settings panel and applies its edits.
func (g *Game) drawSettings() {
	pb := g.session.Playback()
	if !g.settings.IsVisible() {
		return
	}
	g.values.Scrub = float32(pb.Fraction())
	g.values.Playing = pb.Playing()

	changed := g.settings.Draw(&g.values, int32(g.screenWidth))
	var err error
	if changed.Has(ui.ChangeRender) {
		g.applyRender()
	}
	if changed.Has(ui.ChangeTransfer) {
		g.setScheme(g.values.Scheme)
	}
	if changed.Has(ui.ChangeSpeed) {
		pb.SetSpeed(float64(g.values.Speed))
	}
	if changed.Has(ui.ChangeScrub) {
		err = pb.Scrub(float64(g.values.Scrub))
	}
	if changed.Has(ui.ChangePlay) {
		err = pb.Toggle()
	}
	if changed.Has(ui.ChangeSnapshot) {
		g.saveSnapshot()
	}
	if err != nil {
		slog.Debug("settings input ignored", "state", pb.State(), "error", err)
	}
}

// hudData collects the values the HUD shows.
func (g *Game) hudData() ui.HUDData {
	s := g.session
	pb := s.Playback()
	b := s.Builder()
	data := ui.HUDData{
		Title:        "fieldview",
		Source:       s.Info().Name,
		State:        pb.State().String(),
		TimeIndex:    pb.Index(),
		Steps:        pb.Steps(),
		Fraction:     pb.Fraction(),
		Speed:        pb.Speed(),
		TR:           pb.SecondsPerStep(),
		FPS:          rl.GetFPS(),
		Building:     b.Pending(),
		Progress:     b.Progress(),
		LiveTime:     -1,
		Tier:         s.Tier(),
		Visible:      s.Visible(),
		Coverage:     g.coverage,
		Scheme:       s.Config().Transfer.Scheme,
		ScreenWidth:  int32(g.screenWidth),
		ScreenHeight: int32(g.screenHeight),
	}
	c, _ := s.Compositor().Transfer().Apply(1)
	data.Peak = rl.Color(c.NRGBA(1))
	if live := b.Live(); live != nil {
		data.LiveTime = live.Time
		data.Range = live.Range
		data.Res = live.Res
		data.Layout = live.Layout.String()
	}
	return data
}
