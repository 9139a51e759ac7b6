// Package loader turns on-disk or generated data into a field.Field. Every
// source delivers a value for every coordinate; samples it could not read are
// zero-filled and counted in Info.ZeroFilled.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/fieldview/field"
)

// ErrManifest reports an unusable manifest or header.
var ErrManifest = errors.New("loader: bad manifest")

// DefaultTR is the repetition time assumed when a source does not carry one.
const DefaultTR = 2.0

// Info describes a loaded field.
type Info struct {
	Name       string
	Dims       field.Dims
	TR         float64    // seconds per time point
	VoxelSize  [3]float32 // millimetres, used for the volume's aspect ratio
	ZeroFilled int        // samples that had to be zero-filled
}

// LogValue implements slog.LogValuer.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", i.Name),
		slog.String("dims", i.Dims.String()),
		slog.Float64("tr", i.TR),
		slog.Int("zero_filled", i.ZeroFilled),
	)
}

// Extent returns the world-space size of the volume, scaled so the longest
// axis is 1.
func (i Info) Extent() [3]float32 {
	vs := i.VoxelSize
	for k := range vs {
		if !(vs[k] > 0) {
			vs[k] = 1
		}
	}
	e := [3]float32{float32(i.Dims.X) * vs[0], float32(i.Dims.Y) * vs[1], float32(i.Dims.Z) * vs[2]}
	m := max(e[0], e[1], e[2])
	if !(m > 0) {
		return [3]float32{1, 1, 1}
	}
	return [3]float32{e[0] / m, e[1] / m, e[2] / m}
}

// Source produces a field.
type Source interface {
	Load() (*field.Field, Info, error)
}

// Open picks a source for path: a directory holding manifest.json, a .mhd
// header or a glob of them, or a raw float32 file (which needs dims). An
// empty path selects the synthetic source.
func Open(path string, dims field.Dims, seed int64) (Source, error) {
	if path == "" {
		return &Synthetic{Dims: dims, Seed: seed}, nil
	}
	if strings.ContainsAny(path, "*?[") {
		return &MetaImage{Pattern: path}, nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if st.IsDir() {
		return openDir(path), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return openDir(filepath.Dir(path)), nil
	case ".mhd":
		return &MetaImage{Pattern: path}, nil
	}
	if !dims.Valid() {
		return nil, fmt.Errorf("open %s: raw float32 input needs dimensions: %w", path, field.ErrShape)
	}
	return &Raw{Path: path, Dims: dims}, nil
}

// openDir picks the reader for a directory: R8 frames indexed by
// manifest.json, or a MetaImage sequence with or without its own manifest.
func openDir(dir string) Source {
	pattern := filepath.Join(dir, "*.mhd")
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
		return &MetaImage{Pattern: pattern}
	}
	if seq, tr := sniffSequence(dir); seq {
		return &MetaImage{Pattern: pattern, TR: tr}
	}
	return &Manifest{Dir: dir}
}

func warnZeroFilled(info Info) {
	if info.ZeroFilled > 0 {
		slog.Warn("source zero-filled", "source", info.Name, "samples", info.ZeroFilled,
			"of", info.Dims.Len())
	}
}
