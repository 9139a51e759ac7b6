package ui

import (
	"fmt"
	"slices"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/transfer"
)

// Settings are the values the settings panel edits.
type Settings struct {
	IntensityScale float32
	StepSize       float32
	Speed          float32
	Scrub          float32 // timeline fraction in [0, 1]
	Scheme         string
	Playing        bool
}

// Change reports which settings the panel modified this frame.
type Change uint8

const (
	ChangeRender Change = 1 << iota
	ChangeTransfer
	ChangeSpeed
	ChangeScrub
	ChangePlay
	ChangeSnapshot
)

// Has reports whether c includes flag.
func (c Change) Has(flag Change) bool { return c&flag != 0 }

// SettingsPanel is an immediate-mode raygui panel anchored to the right edge.
type SettingsPanel struct {
	renderer *Renderer
	width    float32
	visible  bool
}

// NewSettingsPanel creates a hidden settings panel.
func NewSettingsPanel() *SettingsPanel {
	return &SettingsPanel{renderer: NewRenderer(), width: 280}
}

// Toggle switches panel visibility.
func (p *SettingsPanel) Toggle() bool {
	p.visible = !p.visible
	return p.visible
}

// IsVisible returns whether the panel is shown.
func (p *SettingsPanel) IsVisible() bool { return p.visible }

// Contains reports whether a screen point is over the panel, so the host can
// ignore camera drags that start on it.
func (p *SettingsPanel) Contains(x, y, screenW float32) bool {
	return p.visible && x >= screenW-p.width-10 && y <= 330
}

// Draw renders the panel, applies edits to s and reports what changed.
func (p *SettingsPanel) Draw(s *Settings, screenW int32) Change {
	if !p.visible {
		return 0
	}
	var changed Change

	x := float32(screenW) - p.width - 10
	y := float32(10)
	p.renderer.DrawPanel(int32(x), int32(y), int32(p.width), 320)
	x += 10
	y += 10
	rl.DrawText("Settings [Tab]", int32(x), int32(y), 16, rl.White)
	y += 28

	slider := func(label string, value, lo, hi float32, format string) float32 {
		rl.DrawText(label, int32(x), int32(y), 12, rl.LightGray)
		y += 16
		v := gui.SliderBar(
			rl.Rectangle{X: x, Y: y, Width: p.width - 90, Height: 18},
			"", "",
			value, lo, hi,
		)
		rl.DrawText(fmt.Sprintf(format, v), int32(x+p.width-80), int32(y+2), 14, rl.LightGray)
		y += 28
		return v
	}

	if v := slider("Intensity scale", s.IntensityScale, 1, 100, "%.1f"); v != s.IntensityScale {
		s.IntensityScale = v
		changed |= ChangeRender
	}
	if v := slider("Step size", s.StepSize, 0.002, 0.05, "%.3f"); v != s.StepSize {
		s.StepSize = v
		changed |= ChangeRender
	}
	if v := slider("Speed", s.Speed, 0.25, 8, "%.2fx"); v != s.Speed {
		s.Speed = v
		changed |= ChangeSpeed
	}
	if v := slider("Time", s.Scrub, 0, 1, "%.2f"); v != s.Scrub {
		s.Scrub = v
		changed |= ChangeScrub
	}

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 125, Height: 28}, "Scheme: "+s.Scheme) {
		s.Scheme = NextScheme(s.Scheme)
		changed |= ChangeTransfer
	}
	if gui.Button(rl.Rectangle{X: x + 135, Y: y, Width: 125, Height: 28}, toggleText(s.Playing, "Pause", "Play")) {
		s.Playing = !s.Playing
		changed |= ChangePlay
	}
	y += 38
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 260, Height: 28}, "Save PNG") {
		changed |= ChangeSnapshot
	}
	return changed
}

// NextScheme returns the built-in scheme after name, wrapping around.
// Unknown names, including "custom", start the cycle over.
func NextScheme(name string) string {
	names := transfer.Names()
	i := slices.Index(names, name)
	return names[(i+1)%len(names)]
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
