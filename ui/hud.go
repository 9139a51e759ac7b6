package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/telemetry"
)

// HUDData holds everything the heads-up display shows.
type HUDData struct {
	Title        string
	Source       string
	State        string
	TimeIndex    int
	Steps        int
	Fraction     float64 // position on the timeline in [0, 1]
	Speed        float64
	TR           float64
	FPS          int32
	Building     bool
	Progress     float32
	LiveTime     int // -1 = no live buffer
	Range        field.Range
	Res          field.Vec3i
	Layout       string
	Tier         int
	Visible      bool
	Coverage     float64
	Scheme       string
	Peak         rl.Color // transfer color at full value
	ScreenWidth  int32
	ScreenHeight int32
}

// infoSections describe the volume panel.
var infoSections = []SectionDescriptor{
	{
		Title: "Volume",
		Fields: []FieldDescriptor{
			{Label: "Source", Widget: WidgetText, TextGetter: func(d any) string { return d.(HUDData).Source }},
			{Label: "Grid", Widget: WidgetText, TextGetter: func(d any) string {
				h := d.(HUDData)
				return fmt.Sprintf("%dx%dx%d %s", h.Res.X, h.Res.Y, h.Res.Z, h.Layout)
			}},
			{Label: "Range", Widget: WidgetText, TextGetter: func(d any) string {
				h := d.(HUDData)
				return fmt.Sprintf("%.3g .. %.3g", h.Range.Min, h.Range.Max)
			}},
			{Label: "Detail", Widget: WidgetText, TextGetter: func(d any) string {
				h := d.(HUDData)
				if !h.Visible {
					return "hidden"
				}
				return fmt.Sprintf("tier %d", h.Tier)
			}},
			{Label: "Scheme", Widget: WidgetText, TextGetter: func(d any) string { return d.(HUDData).Scheme }},
			{Label: "Peak", Widget: WidgetSwatch, ColorGetter: func(d any) rl.Color { return d.(HUDData).Peak }},
			{Label: "Coverage", Widget: WidgetBar, Getter: func(d any) float32 { return float32(d.(HUDData).Coverage) }},
		},
		Visible: func(d any) bool { return d.(HUDData).LiveTime >= 0 },
	},
	{
		Title: "Rebuild",
		Fields: []FieldDescriptor{
			{Label: "Progress", Widget: WidgetBar, Getter: func(d any) float32 { return d.(HUDData).Progress }},
		},
		Visible: func(d any) bool { return d.(HUDData).Building },
	},
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{renderer: NewRenderer()}
}

// Draw renders the status lines, the volume panel and the timeline.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, rl.White)

	rl.DrawText(
		fmt.Sprintf("t = %d / %d | %s | %.2gx | TR %.2gs | FPS: %d",
			data.TimeIndex+1, max(data.Steps, 1), data.State, data.Speed, data.TR, data.FPS),
		10, 35, 16, rl.LightGray,
	)
	if data.LiveTime >= 0 && data.LiveTime != data.TimeIndex {
		rl.DrawText(fmt.Sprintf("showing t = %d", data.LiveTime+1), 10, 55, 16, rl.Yellow)
	}

	r := h.renderer
	const width = 240
	x := int32(10)
	y := int32(80)
	height := r.Theme.Padding * 2
	for _, sd := range infoSections {
		height += r.SectionHeight(sd, data)
	}
	if height > r.Theme.Padding*2 {
		r.DrawPanel(x, y, width, height)
		y += r.Theme.Padding
		for _, sd := range infoSections {
			y = r.DrawSection(x+r.Theme.Padding, y, sd, data, width-r.Theme.Padding*2)
		}
	}

	h.DrawTimeline(data)
}

// DrawTimeline draws the playback position along the bottom edge, with one
// tick per time point when they fit.
func (h *HUD) DrawTimeline(data HUDData) {
	if data.Steps <= 0 {
		return
	}
	t := h.renderer.Theme
	x := int32(10)
	w := data.ScreenWidth - 20
	y := data.ScreenHeight - 45

	rl.DrawRectangle(x, y, w, 6, t.BarBg)
	rl.DrawRectangle(x, y, int32(float64(w)*data.Fraction), 6, t.BarFill)
	if data.Steps > 1 && w/int32(data.Steps) >= 4 {
		for i := 0; i < data.Steps; i++ {
			tx := x + int32(i)*(w-1)/int32(data.Steps-1)
			rl.DrawLine(tx, y+6, tx, y+10, t.LabelColor)
		}
	}
	if data.LiveTime >= 0 && data.Steps > 1 {
		mx := x + int32(data.LiveTime)*(w-1)/int32(data.Steps-1)
		rl.DrawRectangle(mx-1, y-3, 3, 12, t.Marker)
	}
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// PerfPanel renders frame phase timings.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y int32) *PerfPanel {
	return &PerfPanel{renderer: NewRenderer(), x: x, y: y}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	r := p.renderer
	const width = 230
	height := r.Theme.Padding*2 + 38 + int32(len(telemetry.Phases))*14
	r.DrawPanel(p.x, p.y, width, height)

	x := p.x + r.Theme.Padding
	y := p.y + r.Theme.Padding
	rl.DrawText("Frame Performance", x, y, 16, rl.White)
	y += 20
	rl.DrawText(fmt.Sprintf("Avg: %s  Max: %s", stats.AvgFrame.Round(time.Microsecond), stats.MaxFrame.Round(time.Microsecond)), x, y, 12, rl.Yellow)
	y += 18

	for _, phase := range telemetry.Phases {
		pct := stats.PhasePct[phase]
		c := rl.LightGray
		if pct > 50 {
			c = rl.Red
		} else if pct > 25 {
			c = rl.Orange
		}
		rl.DrawText(fmt.Sprintf("%-10s %8s %5.1f%%", phase, stats.PhaseAvg[phase].Round(time.Microsecond), pct), x, y, 12, c)
		y += 14
	}
}
