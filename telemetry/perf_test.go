package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseBuild)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseComposite)
		time.Sleep(200 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.AvgFrame <= 0 {
		t.Error("expected positive average frame duration")
	}
	if _, ok := stats.PhaseAvg[PhaseBuild]; !ok {
		t.Error("expected build phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseComposite]; !ok {
		t.Error("expected composite phase to be tracked")
	}
	if stats.MinFrame > stats.AvgFrame || stats.AvgFrame > stats.MaxFrame {
		t.Errorf("min/avg/max out of order: %v %v %v", stats.MinFrame, stats.AvgFrame, stats.MaxFrame)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)
	for i := 0; i < 12; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseLOD)
		pc.EndFrame()
	}
	if pc.Samples() != 5 {
		t.Errorf("samples = %d, want 5", pc.Samples())
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)
	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseUpload)
		time.Sleep(1 * time.Millisecond)
		pc.StartPhase(PhaseComposite)
		time.Sleep(20 * time.Millisecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.PhasePct[PhaseComposite] <= stats.PhasePct[PhaseUpload] {
		t.Errorf("expected composite (%v%%) > upload (%v%%)",
			stats.PhasePct[PhaseComposite], stats.PhasePct[PhaseUpload])
	}
	row := stats.ToCSV(42)
	if row.Frame != 42 || row.CompositePct != stats.PhasePct[PhaseComposite] {
		t.Errorf("csv row = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()
	if stats.AvgFrame != 0 {
		t.Error("expected zero avg frame duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfCollector_PresentTiming(t *testing.T) {
	pc := NewPerfCollector(10)
	pc.RecordPresent()
	time.Sleep(16 * time.Millisecond)
	pc.RecordPresent()

	stats := pc.Stats()
	if stats.PresentInterval < 15*time.Millisecond {
		t.Errorf("expected present interval >= 15ms, got %v", stats.PresentInterval)
	}
	if stats.FPS <= 0 || stats.FPS > 70 {
		t.Errorf("expected FPS in (0, 70] with 16ms frames, got %v", stats.FPS)
	}
}
