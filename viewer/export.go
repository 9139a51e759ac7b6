package viewer

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"log/slog"
	"math"
	"os"

	"github.com/pthm-cable/fieldview/playback"
)

// ExportOptions controls a headless render.
type ExportOptions struct {
	Frames int     // frames to render; 0 = one per time point
	Delay  int     // GIF delay in 100ths of a second; 0 = derived from playback
	Orbit  float64 // total yaw in radians over the animation
}

// Render steps the session to time index t, completes its rebuild and
// composites. It bypasses the frame budget, so the returned frame always
// shows time point t.
func (s *Session) Render(t int) (*image.RGBA, error) {
	if s.src == nil {
		return nil, fmt.Errorf("viewer: render: no field attached")
	}
	s.updateLOD()
	err := s.playback.SetTimeIndex(t)
	if errors.Is(err, playback.ErrNotReady) {
		// The first buffer is still pending; finishing it leaves Idle.
		s.builder.Flush()
		err = s.playback.SetTimeIndex(t)
	}
	if err != nil {
		return nil, fmt.Errorf("viewer: render time %d: %w", t, err)
	}
	s.builder.Flush()
	s.composite()
	return s.img.ToRGBA(), nil
}

// ExportGIF renders an animation of the field and writes it to path. Each
// frame is quantized to the Plan 9 palette with Floyd-Steinberg dithering.
func (s *Session) ExportGIF(path string, opts ExportOptions) error {
	if s.src == nil {
		return fmt.Errorf("viewer: export: no field attached")
	}
	steps := s.src.Dims().T
	frames := opts.Frames
	if frames <= 0 {
		frames = steps
	}
	delay := opts.Delay
	if delay <= 0 {
		sec := s.playback.SecondsPerStep() / s.playback.Speed()
		delay = max(int(math.Round(sec*100)), 2)
	}

	out := &gif.GIF{
		Image: make([]*image.Paletted, 0, frames),
		Delay: make([]int, 0, frames),
	}
	yawStep := float32(opts.Orbit / float64(frames))
	for i := 0; i < frames; i++ {
		frame, err := s.Render(i % steps)
		if err != nil {
			return err
		}
		pimg := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pimg, pimg.Bounds(), frame, image.Point{})
		out.Image = append(out.Image, pimg)
		out.Delay = append(out.Delay, delay)
		s.cam.Rotate(yawStep, 0)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export gif: %w", err)
	}
	if err := gif.EncodeAll(f, out); err != nil {
		f.Close()
		return fmt.Errorf("export gif: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export gif: %w", err)
	}
	slog.Info("gif exported", "path", path, "frames", frames, "delay", delay)
	return nil
}

// WritePNG writes the current composited frame to path.
func (s *Session) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	if err := png.Encode(f, s.img.ToRGBA()); err != nil {
		f.Close()
		return fmt.Errorf("write png: %w", err)
	}
	return f.Close()
}
