// Frame debug tool - draws one composited frame through the GPU path
// (backdrop, frame texture, bounds) into a PNG file for inspection.
//
// Usage: go run ./cmd/framedebug -config cfg.yaml -t 3 -out frame.png
package main

import (
	"flag"
	"fmt"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/renderer"
	"github.com/pthm-cable/fieldview/viewer"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	input := flag.String("input", "", "Field source (overrides source.path)")
	timeIndex := flag.Int("t", 0, "Time index to render")
	outPath := flag.String("out", "frame.png", "Output PNG path")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *input != "" {
		cfg.Source.Path = *input
	}
	width, height := int32(cfg.Screen.Width), int32(cfg.Screen.Height)

	f, info, err := viewer.LoadField(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load field: %v\n", err)
		os.Exit(1)
	}
	session, err := viewer.NewSession(cfg, f, info, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()
	if _, err := session.Render(*timeIndex); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render: %v\n", err)
		os.Exit(1)
	}

	// Initialize raylib with hidden window
	rl.SetConfigFlags(rl.FlagWindowHidden)
	rl.InitWindow(width, height, "Frame Debug")
	defer rl.CloseWindow()

	frame := renderer.NewFrameTexture(width, height)
	defer frame.Unload()
	frame.Upload(session.Image())
	backdrop := renderer.NewBackdrop(width, height, 24, 30, 44)

	// Create render texture
	target := rl.LoadRenderTexture(width, height)
	defer rl.UnloadRenderTexture(target)

	rl.BeginTextureMode(target)
	rl.ClearBackground(rl.Black)
	backdrop.Draw()
	frame.Draw()
	backdrop.DrawBounds(session.Camera())
	rl.EndTextureMode()

	// Get image from texture and flip it (OpenGL convention)
	img := rl.LoadImageFromTexture(target.Texture)
	rl.ImageFlipVertical(img)

	success := rl.ExportImage(*img, *outPath)
	rl.UnloadImage(img)

	if success {
		fmt.Printf("Frame t=%d rendered to: %s (%dx%d)\n", *timeIndex, *outPath, width, height)
	} else {
		fmt.Fprintf(os.Stderr, "Failed to export image\n")
		os.Exit(1)
	}
}
