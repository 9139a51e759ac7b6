package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one viewer frame.
const (
	PhaseInput     = "input"
	PhasePlayback  = "playback"
	PhaseLOD       = "lod"
	PhaseBuild     = "build"
	PhaseComposite = "composite"
	PhaseUpload    = "upload"
	PhaseDraw      = "draw"
)

// Phases lists the frame phases in execution order.
var Phases = []string{
	PhaseInput, PhasePlayback, PhaseLOD, PhaseBuild,
	PhaseComposite, PhaseUpload, PhaseDraw,
}

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	FrameDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks frame timings over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	frameStart    time.Time
	phaseStart    time.Time
	lastPhase     string

	// Wall-clock spacing between presented frames
	lastPresent time.Time
	present     time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize frames.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartFrame begins timing a new frame.
func (p *PerfCollector) StartFrame() {
	p.frameStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndFrame closes the running phase and records the sample.
func (p *PerfCollector) EndFrame() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.samples[p.writeIndex] = PerfSample{
		FrameDuration: now.Sub(p.frameStart),
		Phases:        p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// RecordPresent records the time since the previous presented frame.
func (p *PerfCollector) RecordPresent() {
	now := time.Now()
	if !p.lastPresent.IsZero() {
		p.present = now.Sub(p.lastPresent)
	}
	p.lastPresent = now
}

// Samples returns the number of frames in the window.
func (p *PerfCollector) Samples() int { return p.sampleCount }

// PerfStats holds aggregated frame statistics.
type PerfStats struct {
	AvgFrame time.Duration
	MinFrame time.Duration
	MaxFrame time.Duration

	// Average duration and share of frame time per phase
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	PresentInterval time.Duration
	FPS             float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	var fps float64
	if p.present > 0 {
		fps = float64(time.Second) / float64(p.present)
	}
	out := PerfStats{
		PhaseAvg:        make(map[string]time.Duration),
		PhasePct:        make(map[string]float64),
		PresentInterval: p.present,
		FPS:             fps,
	}
	if p.sampleCount == 0 {
		return out
	}

	var total time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.FrameDuration
		if i == 0 || s.FrameDuration < out.MinFrame {
			out.MinFrame = s.FrameDuration
		}
		if s.FrameDuration > out.MaxFrame {
			out.MaxFrame = s.FrameDuration
		}
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}
	out.AvgFrame = total / time.Duration(p.sampleCount)

	for phase, sum := range phaseSum {
		avg := sum / time.Duration(p.sampleCount)
		out.PhaseAvg[phase] = avg
		if out.AvgFrame > 0 {
			out.PhasePct[phase] = float64(avg) / float64(out.AvgFrame) * 100
		}
	}
	return out
}

// LogStats logs the window at info level.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_frame_us", s.AvgFrame.Microseconds(),
		"max_frame_us", s.MaxFrame.Microseconds(),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrame.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrame.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrame.Microseconds()),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the flat perf.csv row.
type PerfStatsCSV struct {
	Frame        int64   `csv:"frame"`
	AvgFrameUS   int64   `csv:"avg_frame_us"`
	MinFrameUS   int64   `csv:"min_frame_us"`
	MaxFrameUS   int64   `csv:"max_frame_us"`
	FPS          float64 `csv:"fps"`
	InputPct     float64 `csv:"input_pct"`
	PlaybackPct  float64 `csv:"playback_pct"`
	LODPct       float64 `csv:"lod_pct"`
	BuildPct     float64 `csv:"build_pct"`
	CompositePct float64 `csv:"composite_pct"`
	UploadPct    float64 `csv:"upload_pct"`
	DrawPct      float64 `csv:"draw_pct"`
}

// ToCSV flattens the stats for perf.csv.
func (s PerfStats) ToCSV(frame int64) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:        frame,
		AvgFrameUS:   s.AvgFrame.Microseconds(),
		MinFrameUS:   s.MinFrame.Microseconds(),
		MaxFrameUS:   s.MaxFrame.Microseconds(),
		FPS:          s.FPS,
		InputPct:     s.PhasePct[PhaseInput],
		PlaybackPct:  s.PhasePct[PhasePlayback],
		LODPct:       s.PhasePct[PhaseLOD],
		BuildPct:     s.PhasePct[PhaseBuild],
		CompositePct: s.PhasePct[PhaseComposite],
		UploadPct:    s.PhasePct[PhaseUpload],
		DrawPct:      s.PhasePct[PhaseDraw],
	}
}
