package main

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/fieldview/config"
	"github.com/pthm-cable/fieldview/field"
	"github.com/pthm-cable/fieldview/loader"
	"github.com/pthm-cable/fieldview/raymarch"
	"github.com/pthm-cable/fieldview/viewer"
)

// Targets are the image statistics a calibrated rendering should reach.
type Targets struct {
	Coverage  float64 // mean alpha
	Luminance float64 // mean premultiplied luminance
	CostRef   float64 // step size at which the cost term is 1
	CostW     float64 // weight of the raymarch cost term
}

// FitnessEvaluator renders sample time points headlessly and scores how
// close the frames come to the targets.
type FitnessEvaluator struct {
	params  *ParamVector
	base    *config.Config
	field   *field.Field
	info    loader.Info
	times   []int
	targets Targets

	mu          sync.Mutex
	bestFitness float64
	lastStats   frameStats // from the most recent Evaluate call
}

// frameStats summarizes the frames of one evaluation.
type frameStats struct {
	Coverage  float64
	Luminance float64
}

// NewFitnessEvaluator creates an evaluator over the given time points.
func NewFitnessEvaluator(params *ParamVector, base *config.Config, f *field.Field, info loader.Info, times []int, targets Targets) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		base:        base,
		field:       f,
		info:        info,
		times:       times,
		targets:     targets,
		bestFitness: math.Inf(1),
	}
}

// LastStats returns the frame statistics from the most recent evaluation.
func (fe *FitnessEvaluator) LastStats() frameStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastStats
}

// Evaluate computes fitness for raw parameter values (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg, err := fe.copyConfig()
	if err == nil {
		err = fe.params.ApplyToConfig(cfg, x)
	}
	if err != nil {
		return math.Inf(1)
	}

	// One session per time point, rendered in parallel. The field is only
	// read.
	results := make([]frameStats, len(fe.times))
	failed := make([]bool, len(fe.times))
	var wg sync.WaitGroup
	for i, t := range fe.times {
		wg.Add(1)
		go func(idx, t int) {
			defer wg.Done()
			s, err := viewer.NewSession(cfg, fe.field, fe.info, nil)
			if err != nil {
				failed[idx] = true
				return
			}
			defer s.Close()
			if _, err := s.Render(t); err != nil {
				failed[idx] = true
				return
			}
			results[idx] = measure(s.Image())
		}(i, t)
	}
	wg.Wait()

	cov := make([]float64, 0, len(results))
	lum := make([]float64, 0, len(results))
	for i, r := range results {
		if failed[i] {
			return math.Inf(1)
		}
		cov = append(cov, r.Coverage)
		lum = append(lum, r.Luminance)
	}
	mean := frameStats{Coverage: stat.Mean(cov, nil), Luminance: stat.Mean(lum, nil)}
	fitness := fe.computeFitness(mean, cfg.Render.StepSize)

	fe.mu.Lock()
	if fitness < fe.bestFitness {
		fe.bestFitness = fitness
	}
	fe.lastStats = mean
	fe.mu.Unlock()

	return fitness
}

// computeFitness is the squared distance to the targets plus a cost term
// that grows as the step size shrinks.
func (fe *FitnessEvaluator) computeFitness(m frameStats, stepSize float64) float64 {
	dc := m.Coverage - fe.targets.Coverage
	dl := m.Luminance - fe.targets.Luminance
	cost := 0.0
	if stepSize > 0 {
		cost = fe.targets.CostW * fe.targets.CostRef / stepSize
	}
	return dc*dc + dl*dl + cost
}

// copyConfig deep-copies the base config through YAML.
func (fe *FitnessEvaluator) copyConfig() (*config.Config, error) {
	data, err := yaml.Marshal(fe.base)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if err := cfg.Overlay(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// measure returns the mean coverage and luminance of a frame.
func measure(img *raymarch.Image) frameStats {
	if len(img.Pix) == 0 {
		return frameStats{}
	}
	alpha := make([]float64, len(img.Pix))
	lum := make([]float64, len(img.Pix))
	for i, p := range img.Pix {
		alpha[i] = float64(p.A) / 255
		lum[i] = (0.2126*float64(p.R) + 0.7152*float64(p.G) + 0.0722*float64(p.B)) / 255
	}
	return frameStats{Coverage: stat.Mean(alpha, nil), Luminance: stat.Mean(lum, nil)}
}
