package main

import (
	"github.com/pthm-cable/fieldview/config"
)

// ParamSpec defines a single tunable render parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard parameter set with defaults taken
// from cfg.
func NewParamVector(cfg *config.Config) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			{Name: "intensity_scale", Path: "render.intensity_scale", Min: 1, Max: 100},
			{Name: "step_size", Path: "render.step_size", Min: 0.002, Max: 0.05},
			{Name: "min_opacity", Path: "render.min_opacity", Min: 0, Max: 0.1},
		},
	}
	defaults := []float64{cfg.Render.IntensityScale, cfg.Render.StepSize, cfg.Render.MinOpacity}
	for i := range pv.Specs {
		pv.Specs[i].Default = defaults[i]
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped values into cfg and recomputes its derived
// values. Order must match Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	clamped := pv.Clamp(values)
	cfg.Render.IntensityScale = clamped[0]
	cfg.Render.StepSize = clamped[1]
	cfg.Render.MinOpacity = clamped[2]
	return cfg.Refresh()
}
