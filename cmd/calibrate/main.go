// Package main searches render parameters that bring a field's frames to a
// target coverage and brightness, using CMA-ES over headless renders.
//
// Usage: go run ./cmd/calibrate -output out/ [-config cfg.yaml]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/viewer"
)

// formatDuration formats a duration as MM:SS or HH:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// sampleTimes spreads n time indices evenly over steps.
func sampleTimes(steps, n int) []int {
	n = max(min(n, steps), 1)
	times := make([]int, n)
	for i := range times {
		if n > 1 {
			times[i] = i * (steps - 1) / (n - 1)
		}
	}
	return times
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	outputDir := flag.String("output", "", "Output directory for results")
	maxEvals := flag.Int("max-evals", 80, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	samples := flag.Int("samples", 3, "Time points rendered per evaluation")
	size := flag.Int("size", 160, "Render width in pixels (height keeps the screen aspect)")
	coverage := flag.Float64("target-coverage", 0.25, "Target mean alpha")
	luminance := flag.Float64("target-luminance", 0.12, "Target mean luminance")
	costWeight := flag.Float64("cost-weight", 0.002, "Weight of the step-count cost")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Sessions log every rebuild; keep only warnings.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()
	aspect := float64(baseCfg.Screen.Height) / float64(max(baseCfg.Screen.Width, 1))
	baseCfg.Screen.Width = *size
	baseCfg.Screen.Height = max(int(float64(*size)*aspect), 1)
	baseCfg.Screen.Scale = 1
	baseCfg.Telemetry.LogInterval = 0
	if err := baseCfg.Refresh(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	f, info, err := viewer.LoadField(baseCfg)
	if err != nil {
		log.Fatalf("failed to load field: %v", err)
	}

	params := NewParamVector(baseCfg)
	times := sampleTimes(f.Dims().T, *samples)
	evaluator := NewFitnessEvaluator(params, baseCfg, f, info, times, Targets{
		Coverage:  *coverage,
		Luminance: *luminance,
		CostRef:   0.01,
		CostW:     *costWeight,
	})

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0,
	}
	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness", "coverage", "luminance"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	startTime := time.Now()

	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness {
			bestFitness = fitness
			bestParams = clamped
		}

		last := evaluator.LastStats()
		row := []string{
			strconv.Itoa(evalCount),
			fmt.Sprintf("%.6f", fitness),
			fmt.Sprintf("%.4f", last.Coverage),
			fmt.Sprintf("%.4f", last.Luminance),
		}
		for _, v := range clamped {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		logWriter.Write(row)
		logWriter.Flush()

		elapsed := time.Since(startTime)
		remaining := time.Duration(*maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
		fmt.Printf("Eval %d/%d: coverage=%.3f luminance=%.3f fitness=%.5f (best=%.5f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, last.Coverage, last.Luminance, fitness, bestFitness,
			formatDuration(elapsed), formatDuration(remaining))
		return fitness
	}

	fmt.Printf("Calibrating %s: %d parameters, population=%d, max_evals=%d, times=%v\n",
		info.Name, dim, popSize, *maxEvals, times)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.5f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Save against the unmodified config so screen settings are kept.
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	if err := params.ApplyToConfig(bestCfg, bestParams); err != nil {
		log.Fatalf("failed to apply parameters: %v", err)
	}
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
