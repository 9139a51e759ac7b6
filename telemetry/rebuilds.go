package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/fieldview/volume"
)

// RebuildRecord is one rebuilds.csv row: a render buffer that went live.
type RebuildRecord struct {
	Frame     int64   `csv:"frame"`
	Time      int     `csv:"time_index"`
	ResX      int     `csv:"res_x"`
	ResY      int     `csv:"res_y"`
	ResZ      int     `csv:"res_z"`
	Layout    string  `csv:"layout"`
	RangeMin  float32 `csv:"range_min"`
	RangeMax  float32 `csv:"range_max"`
	Cells     int     `csv:"cells"`
	Scanned   int     `csv:"range_scanned"`
	Ticks     int     `csv:"ticks"`
	LatencyMS float64 `csv:"latency_ms"`
	Abandoned int     `csv:"abandoned"`
}

// NewRebuildRecord flattens builder stats for the frame they completed on.
func NewRebuildRecord(frame int64, s volume.Stats) RebuildRecord {
	return RebuildRecord{
		Frame:     frame,
		Time:      s.Time,
		ResX:      s.Res.X,
		ResY:      s.Res.Y,
		ResZ:      s.Res.Z,
		Layout:    s.Layout.String(),
		RangeMin:  s.Range.Min,
		RangeMax:  s.Range.Max,
		Cells:     s.Cells,
		Scanned:   s.Scanned,
		Ticks:     s.Ticks,
		LatencyMS: float64(s.Duration.Microseconds()) / 1000,
		Abandoned: s.Abandoned,
	}
}

// LogValue implements slog.LogValuer.
func (r RebuildRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("time", r.Time),
		slog.Any("res", []int{r.ResX, r.ResY, r.ResZ}),
		slog.String("layout", r.Layout),
		slog.Float64("range_min", float64(r.RangeMin)),
		slog.Float64("range_max", float64(r.RangeMax)),
		slog.Int("ticks", r.Ticks),
		slog.Float64("latency_ms", r.LatencyMS),
		slog.Int("abandoned", r.Abandoned),
	)
}

// RebuildWindow accumulates rebuilds between log intervals.
type RebuildWindow struct {
	latencies []float64
	ticks     []float64
	abandoned int
}

// Add records one completed rebuild.
func (w *RebuildWindow) Add(r RebuildRecord) {
	w.latencies = append(w.latencies, r.LatencyMS)
	w.ticks = append(w.ticks, float64(r.Ticks))
	w.abandoned += r.Abandoned
}

// RebuildSummary aggregates a window of rebuilds.
type RebuildSummary struct {
	Count       int
	Abandoned   int
	LatencyMean float64
	LatencyP50  float64
	LatencyP90  float64
	TicksMean   float64
}

// Summary returns the window aggregate and starts a new window.
func (w *RebuildWindow) Summary() RebuildSummary {
	s := RebuildSummary{Count: len(w.latencies), Abandoned: w.abandoned}
	if s.Count > 0 {
		sorted := append([]float64(nil), w.latencies...)
		sort.Float64s(sorted)
		s.LatencyMean = stat.Mean(sorted, nil)
		s.LatencyP50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		s.LatencyP90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
		s.TicksMean = stat.Mean(w.ticks, nil)
	}
	w.latencies = w.latencies[:0]
	w.ticks = w.ticks[:0]
	w.abandoned = 0
	return s
}

// LogValue implements slog.LogValuer.
func (s RebuildSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("count", s.Count),
		slog.Int("abandoned", s.Abandoned),
		slog.Float64("latency_mean_ms", s.LatencyMean),
		slog.Float64("latency_p50_ms", s.LatencyP50),
		slog.Float64("latency_p90_ms", s.LatencyP90),
		slog.Float64("ticks_mean", s.TicksMean),
	)
}
