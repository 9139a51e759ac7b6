// Transfer function preview tool - interactive editing of the color and
// opacity ramp with sliders, shown on a slice of the configured field.
//
// Usage: go run ./cmd/transferpreview [-config cfg.yaml]
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/renderer"
	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/ui"
	"github.com/pthm-cable/fieldview/viewer"
	"github.com/pthm-cable/fieldview/volume"
)

const (
	windowWidth  = 1000
	windowHeight = 720
	previewSize  = 512
	panelWidth   = windowWidth - previewSize - 30
)

// sliderRow is one labelled slider bound to a float32.
type sliderRow struct {
	label  string
	value  *float32
	lo, hi float32
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()
	f, _, err := viewer.LoadField(cfg)
	if err != nil {
		log.Fatalf("failed to load field: %v", err)
	}

	rl.InitWindow(windowWidth, windowHeight, "Transfer Function Preview")
	defer rl.CloseWindow()
	rl.SetTargetFPS(30)

	tf := cfg.Derived.Transfer
	scheme := cfg.Transfer.Scheme
	steps := f.Dims().T
	var timeIndex float32

	builder := volume.NewBuilder()
	builder.SetSource(f)
	build := func() {
		req := cfg.BuildRequest(int(timeIndex))
		req.Layout = volume.Atlas2D
		builder.Request(req)
		builder.Flush()
	}
	build()

	preview := renderer.NewSlicePreview()
	defer preview.Unload()
	widgets := ui.NewRenderer()

	for !rl.WindowShouldClose() {
		preview.Update(builder.Live(), tf)

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		// Preview: the whole atlas, every z slice of the time point
		rl.DrawRectangle(10, 10, previewSize, previewSize, rl.Black)
		preview.Draw(10+previewSize, 10, previewSize)
		widgets.DrawRamp(10, previewSize+20, previewSize, 24, tf.Ramp(previewSize))
		if live := builder.Live(); live != nil {
			rl.DrawText(fmt.Sprintf("t = %d / %d  range %.3g .. %.3g  %v", live.Time+1, steps, live.Range.Min, live.Range.Max, live.Res),
				15, previewSize+55, 16, rl.DarkGray)
		}

		// Control panel
		panelX := float32(previewSize + 20)
		panelY := float32(10)
		rl.DrawText("Transfer Function", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		before := tf
		rows := []sliderRow{
			{"Min R", &tf.MinColor.R, 0, 1}, {"Min G", &tf.MinColor.G, 0, 1}, {"Min B", &tf.MinColor.B, 0, 1},
			{"Max R", &tf.MaxColor.R, 0, 1}, {"Max G", &tf.MaxColor.G, 0, 1}, {"Max B", &tf.MaxColor.B, 0, 1},
			{"Min alpha", &tf.MinAlpha, 0, 1}, {"Max alpha", &tf.MaxAlpha, 0, 1},
		}
		for _, row := range rows {
			rl.DrawText(row.label, int32(panelX), int32(panelY+2), 14, rl.Gray)
			*row.value = gui.SliderBar(
				rl.Rectangle{X: panelX + 80, Y: panelY, Width: float32(panelWidth - 160), Height: 20},
				"", "",
				*row.value, row.lo, row.hi,
			)
			rl.DrawText(fmt.Sprintf("%.2f", *row.value), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
			panelY += 30
		}
		if tf != before {
			scheme = "custom"
		}

		rl.DrawText("Time", int32(panelX), int32(panelY+2), 14, rl.Gray)
		newTime := gui.SliderBar(
			rl.Rectangle{X: panelX + 80, Y: panelY, Width: float32(panelWidth - 160), Height: 20},
			"", "",
			timeIndex, 0, float32(max(steps-1, 0)),
		)
		if int(newTime) != int(timeIndex) {
			timeIndex = newTime
			build()
		}
		panelY += 40

		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 150, Height: 30}, "Scheme: "+scheme) {
			scheme = ui.NextScheme(scheme)
			tf, _ = transfer.Lookup(scheme)
		}
		transparency := "Ramp alpha: on"
		if !tf.UseTransparency {
			transparency = "Ramp alpha: off"
		}
		if gui.Button(rl.Rectangle{X: panelX + 160, Y: panelY, Width: 150, Height: 30}, transparency) {
			tf.UseTransparency = !tf.UseTransparency
			scheme = "custom"
		}
		panelY += 50

		// Output YAML
		rl.DrawText("YAML Config:", int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 25
		yaml := transferYAML(tf)
		for _, line := range strings.Split(yaml, "\n") {
			rl.DrawText(line, int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 16
		}

		rl.DrawText("Press C to copy YAML to clipboard", int32(panelX), int32(windowHeight-30), 12, rl.LightGray)
		if rl.IsKeyPressed(rl.KeyC) {
			rl.SetClipboardText(yaml)
		}

		rl.EndDrawing()
	}
}

// transferYAML renders tf as a custom transfer config section.
func transferYAML(tf transfer.Function) string {
	return fmt.Sprintf(`transfer:
  scheme: custom
  min_color: [%.2f, %.2f, %.2f]
  max_color: [%.2f, %.2f, %.2f]
  min_alpha: %.2f
  max_alpha: %.2f
  use_transparency: %t`,
		tf.MinColor.R, tf.MinColor.G, tf.MinColor.B,
		tf.MaxColor.R, tf.MaxColor.G, tf.MaxColor.B,
		tf.MinAlpha, tf.MaxAlpha, tf.UseTransparency)
}
