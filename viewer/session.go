// Package viewer owns the state of one viewing session and advances it one
// frame at a time: playback clock, level of detail, incremental buffer
// rebuilds and compositing. It has no window dependency, so the same
// session drives the interactive host and headless export.
package viewer

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/fieldview/camera"
	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/loader"
	"github.com/pthm-cable/fieldview/lod"
	"github.com/pthm-cable/fieldview/playback"
	"github.com/pthm-cable/fieldview/raymarch"
	"github.com/pthm-cable/fieldview/telemetry"
	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/volume"
)

// Session holds everything one visual instance needs. It is driven from a
// single goroutine; the raymarch renderer parallelizes internally.
type Session struct {
	cfg  *config.Config
	src  *field.Field
	info loader.Info

	builder  *volume.Builder
	playback *playback.Controller
	comp     *raymarch.Compositor
	render   *raymarch.Renderer
	img      *raymarch.Image
	cam      *camera.Orbit

	lod     *lod.Manager
	element ecs.Entity
	tier    int
	visible bool

	perf     *telemetry.PerfCollector
	out      *telemetry.OutputManager
	rebuilds telemetry.RebuildWindow

	// last grid reported as clamped
	clampedFrom field.Grid
	clampWarned bool

	// last composited inputs
	shownBuf *volume.Buffer
	shownRev uint64
	dirty    bool

	frame      int64
	sinceLog   float64
	composites int
}

// LoadField opens the configured source, loads it and applies the configured
// derivation (time mean or percent signal change) and downsampling.
func LoadField(cfg *config.Config) (*field.Field, loader.Info, error) {
	src, err := loader.Open(cfg.Source.Path, cfg.SourceDims(), cfg.Source.Seed)
	if err != nil {
		return nil, loader.Info{}, err
	}
	if m, ok := src.(*loader.Manifest); ok {
		m.Series = cfg.Source.Series
	}

	f, info, err := src.Load()
	if err != nil {
		return nil, loader.Info{}, fmt.Errorf("load field: %w", err)
	}
	if cfg.Source.TR > 0 {
		info.TR = cfg.Source.TR
	}

	if cfg.Source.CropCenter {
		f = cropToSignal(f, cfg.Source.CropThreshold, cfg.Source.CropPad)
	}

	switch cfg.Source.Derive {
	case "", "none":
	case "mean":
		f = f.TimeMean()
	case "psc":
		f = f.PercentSignalChange(cfg.Derived.Baseline, cfg.Source.BaselineN, float32(cfg.Source.PSCRange))
	default:
		return nil, loader.Info{}, fmt.Errorf("load field: unknown derive %q", cfg.Source.Derive)
	}
	if cfg.Source.Downsample > 1 {
		f = f.Downsample(cfg.Source.Downsample)
		// Spacing grows with the block size, so the extent is unchanged.
		for k := range info.VoxelSize {
			info.VoxelSize[k] *= float32(cfg.Source.Downsample)
		}
	}
	info.Dims = f.Dims()
	slog.Info("field loaded", "info", info, "field", f)
	return f, info, nil
}

// cropToSignal crops f to its signal. The threshold is a fraction of the
// 2-98 percentile window, so it does not depend on the source's units.
func cropToSignal(f *field.Field, frac float64, pad int) *field.Field {
	w := field.PercentileWindow(f, field.Grid{}, field.AllTime(f.Dims()), 1, 2, 98)
	thresh := w.Min + float32(frac)*(w.Max-w.Min)
	c, ok := f.CropToSignal(thresh, pad)
	if !ok {
		slog.Warn("crop skipped: no voxel above threshold", "threshold", thresh)
		return f
	}
	slog.Info("field cropped", "from", f.Dims().String(), "to", c.Dims().String())
	return c
}

// NewSession builds a session around f and attaches it. out may be nil.
func NewSession(cfg *config.Config, f *field.Field, info loader.Info, out *telemetry.OutputManager) (*Session, error) {
	s := &Session{
		cfg:     cfg,
		builder: volume.NewBuilder(),
		comp:    raymarch.NewCompositor(cfg.Derived.Render, cfg.Derived.Transfer),
		lod:     lod.NewManager(cfg.Derived.LOD),
		perf:    telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		out:     out,
		visible: true,
	}
	s.render = raymarch.NewRenderer(s.comp, cfg.Render.Workers)
	s.playback = playback.New(cfg.Playback.SecondsPerStep, cfg.Playback.Speed, s.requestBuild)
	s.builder.OnSwap(s.onSwap)

	w, h := s.imageSize(cfg.Derived.ScreenW32, cfg.Derived.ScreenH32)
	s.img = raymarch.NewImage(w, h)
	s.cam = camera.New(cfg.Derived.ScreenW32, cfg.Derived.ScreenH32, mgl32.Vec3{1, 1, 1})

	if err := s.Attach(f, info); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Attach binds a field. Any previous field, live buffer and in-flight
// rebuild are dropped first.
func (s *Session) Attach(f *field.Field, info loader.Info) error {
	if f == nil {
		return fmt.Errorf("viewer: attach: %w", field.ErrEmptyField)
	}
	s.Detach()
	s.src, s.info = f, info

	ext := info.Extent()
	extent := mgl32.Vec3{ext[0], ext[1], ext[2]}
	s.cam.SetExtent(extent)
	s.element = s.lod.Add(mgl32.Vec3{}, extent.Len()/2)
	s.lod.Update(s.cam.Eye())
	s.tier = s.lod.TierOf(s.element)
	s.visible = s.lod.Visible(s.element)

	if s.cfg.Playback.SecondsPerStep > 0 {
		s.playback.SetSecondsPerStep(s.cfg.Playback.SecondsPerStep)
	} else {
		s.playback.SetSecondsPerStep(info.TR)
	}
	s.builder.SetSource(f)
	// Attach fires the rebuild hook for index 0.
	return s.playback.Attach(f.Dims().T)
}

// Detach drops the field and every buffer derived from it, for example when
// the host loses its rendering resources. The session stays usable; Attach
// restores it.
func (s *Session) Detach() {
	if s.src == nil {
		return
	}
	slog.Info("session detached", "source", s.info.Name)
	s.builder.SetSource(nil)
	s.playback.Detach()
	s.lod.Remove(s.element)
	s.src = nil
	s.shownBuf = nil
	s.img.Clear()
	s.dirty = true
}

// Close stops the render workers.
func (s *Session) Close() {
	s.render.Close()
}

func (s *Session) imageSize(screenW, screenH float32) (int, int) {
	scale := float32(s.cfg.Screen.Scale)
	return max(int(screenW*scale), 1), max(int(screenH*scale), 1)
}

// request assembles the builder request for time index t at the current
// detail tier.
func (s *Session) request(t int) volume.Request {
	req := s.cfg.BuildRequest(t)
	g, changed := req.Grid.Clamp(s.src.Dims())
	if changed && (!s.clampWarned || s.clampedFrom != req.Grid) {
		slog.Warn("config clamped", "key", "grid", "requested", req.Grid, "used", g,
			"dims", s.src.Dims().String())
		s.clampWarned, s.clampedFrom = true, req.Grid
	}
	g.Res = s.lod.Resolution(s.tier, g.Res)
	req.Grid = g
	return req
}

// requestBuild is the playback rebuild hook.
func (s *Session) requestBuild(t int) {
	if s.src == nil || !s.visible {
		return
	}
	s.builder.Request(s.request(t))
}

// Rebuild re-requests the current time point, for use after the grid, range
// or layout settings change.
func (s *Session) Rebuild() {
	s.requestBuild(s.playback.Index())
}

func (s *Session) onSwap(st volume.Stats) {
	rec := telemetry.NewRebuildRecord(s.frame, st)
	s.rebuilds.Add(rec)
	if err := s.out.WriteRebuild(rec); err != nil {
		slog.Warn("rebuild record not written", "error", err)
	}
	slog.Debug("rebuild complete", "rebuild", rec)

	wasIdle := s.playback.State() == playback.Idle
	s.playback.Built()
	if wasIdle && s.cfg.Playback.Autoplay {
		if err := s.playback.Play(); err != nil {
			slog.Warn("autoplay failed", "error", err)
		}
	}
}

// Update advances the session by dt seconds and reports whether a new frame
// was composited. It starts a perf frame; EndFrame closes it.
func (s *Session) Update(dt float64) bool {
	s.perf.StartFrame()
	s.sinceLog += dt
	if s.src == nil {
		return false
	}

	s.perf.StartPhase(telemetry.PhasePlayback)
	s.playback.Advance(dt)

	s.perf.StartPhase(telemetry.PhaseLOD)
	s.updateLOD()

	s.perf.StartPhase(telemetry.PhaseBuild)
	s.builder.Tick(s.cfg.Derived.BuilderTicks)

	s.perf.StartPhase(telemetry.PhaseComposite)
	return s.composite()
}

func (s *Session) updateLOD() {
	if s.lod.Update(s.cam.Eye()) == 0 {
		return
	}
	visible := s.lod.Visible(s.element)
	tier := s.lod.TierOf(s.element)
	if visible != s.visible {
		slog.Info("volume visibility", "visible", visible, "tier", tier)
		s.dirty = true
	}
	s.visible = visible
	if tier != s.tier {
		slog.Info("detail tier", "from", s.tier, "to", tier)
		s.tier = tier
	}
	s.requestBuild(s.playback.Index())
}

// composite re-renders when the live buffer, the camera or the render
// settings changed since the last frame.
func (s *Session) composite() bool {
	live := s.builder.Live()
	if !s.visible {
		live = nil
	}
	if live == s.shownBuf && s.cam.Revision() == s.shownRev && !s.dirty {
		return false
	}
	s.render.Render(live, s.cam, s.img)
	s.shownBuf = live
	s.shownRev = s.cam.Revision()
	s.dirty = false
	s.composites++
	return true
}

// EndFrame closes the perf frame and emits periodic telemetry.
func (s *Session) EndFrame() {
	s.perf.EndFrame()
	s.frame++
	interval := s.cfg.Telemetry.LogInterval
	if interval <= 0 || s.sinceLog < interval {
		return
	}
	s.sinceLog = 0
	stats := s.perf.Stats()
	stats.LogStats()
	if sum := s.rebuilds.Summary(); sum.Count > 0 || sum.Abandoned > 0 {
		slog.Info("rebuilds", "window", sum)
	}
	if err := s.out.WritePerf(stats, s.frame); err != nil {
		slog.Warn("perf record not written", "error", err)
	}
}

// Resize adapts the camera and the composited image to a new screen size.
func (s *Session) Resize(screenW, screenH float32) {
	s.cam.Resize(screenW, screenH)
	w, h := s.imageSize(screenW, screenH)
	if w != s.img.Width || h != s.img.Height {
		s.img = raymarch.NewImage(w, h)
		s.dirty = true
	}
}

// SetTransfer swaps the transfer function; the next Update re-composites.
func (s *Session) SetTransfer(tf transfer.Function) {
	s.comp.SetTransfer(tf)
	s.dirty = true
}

// SetRenderParams swaps the raymarch parameters.
func (s *Session) SetRenderParams(p raymarch.Params) {
	s.comp.SetParams(p)
	s.dirty = true
}

// Config returns the session configuration. Callers that change grid, range
// or layout settings call Rebuild afterwards.
func (s *Session) Config() *config.Config { return s.cfg }

func (s *Session) Field() *field.Field { return s.src }
func (s *Session) Info() loader.Info { return s.info }
func (s *Session) Image() *raymarch.Image { return s.img }
func (s *Session) Camera() *camera.Orbit { return s.cam }
func (s *Session) Playback() *playback.Controller { return s.playback }
func (s *Session) Builder() *volume.Builder { return s.builder }
func (s *Session) Compositor() *raymarch.Compositor { return s.comp }
func (s *Session) Perf() *telemetry.PerfCollector { return s.perf }
func (s *Session) Output() *telemetry.OutputManager { return s.out }
func (s *Session) Tier() int { return s.tier }
func (s *Session) Visible() bool { return s.visible }
func (s *Session) Frame() int64 { return s.frame }
func (s *Session) Composites() int { return s.composites }
