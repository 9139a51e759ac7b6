package main

import (
	"flag"
	"log/slog"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/game"
	"github.com/pthm-cable/fieldview/telemetry"
	"github.com/pthm-cable/fieldview/viewer"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	input := flag.String("input", "", "Field source: manifest dir, .mhd file or glob, raw file (overrides source.path)")
	headless := flag.Bool("headless", false, "Run without graphics")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	gifPath := flag.String("gif", "", "Headless: write an animated GIF here")
	frames := flag.Int("frames", 0, "Headless: frames to run or export (0 = one pass over the time points)")
	orbit := flag.Float64("orbit", 0, "Headless GIF: total camera yaw in radians")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *input != "" {
		cfg.Source.Path = *input
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	f, info, err := viewer.LoadField(cfg)
	if err != nil {
		slog.Error("failed to load field", "error", err)
		os.Exit(1)
	}

	if *headless {
		// Headless mode - CPU compositing only, no raylib needed
		session, err := viewer.NewSession(cfg, f, info, out)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			os.Exit(1)
		}
		defer session.Close()

		if *gifPath != "" {
			opts := viewer.ExportOptions{Frames: *frames, Orbit: *orbit}
			if err := session.ExportGIF(*gifPath, opts); err != nil {
				slog.Error("gif export failed", "error", err)
				os.Exit(1)
			}
			return
		}

		// Fixed-step playback: the same per-frame budget as the window loop.
		fps := max(cfg.Screen.TargetFPS, 1)
		dt := 1 / float64(fps)
		n := *frames
		if n <= 0 {
			pb := session.Playback()
			n = int(float64(f.Dims().T)*pb.SecondsPerStep()/pb.Speed()*float64(fps)) + fps
		}
		if !cfg.Playback.Autoplay {
			slog.Warn("playback.autoplay is off; headless run stays on the first time point")
		}
		slog.Info("starting headless run", "source", info.Name, "frames", n)
		for i := 0; i < n; i++ {
			session.Update(dt)
			session.EndFrame()
		}
		session.Perf().Stats().LogStats()
		slog.Info("headless run complete", "frames", session.Frame(), "composites", session.Composites())
		return
	}

	// Graphical mode
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "fieldview - "+info.Name)
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	session, err := viewer.NewSession(cfg, f, info, out)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	g := game.NewGame(session)
	defer g.Unload()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()
	}
}
