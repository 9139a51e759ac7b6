package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/fieldview/field"
)

// ManifestFile is the index written next to the frame files.
const ManifestFile = "manifest.json"

// Series names a frame set inside a manifest.
const (
	SeriesPSC     = "psc"
	SeriesRaw     = "raw"
	SeriesAnatomy = "anatomy"
)

type frameRef struct {
	File string `json:"file"`
	T    int    `json:"t"`
}

type manifestDoc struct {
	Dims struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	} `json:"dims"`
	VoxelSizeMM []float32 `json:"voxel_size_mm"`
	Timepoints  int       `json:"timepoints"`
	TRSeconds   float64   `json:"tr_seconds"`
	Format      string    `json:"format"`
	ByteOrder   string    `json:"byte_order"`
	Anatomy     *struct {
		File string `json:"file"`
	} `json:"anatomy"`
	PSC struct {
		Enabled      bool       `json:"enabled"`
		RangePercent float64    `json:"range_percent"`
		Frames       []frameRef `json:"frames"`
	} `json:"psc"`
	Frames []frameRef `json:"frames"`
}

// Manifest reads a directory of 8-bit frame files indexed by manifest.json.
// Each frame is X*Y*Z bytes mapped to [0, 1]. Missing or short frames are
// zero-filled.
type Manifest struct {
	Dir string
	// Series selects psc (default when present), raw or anatomy.
	Series string
}

// sequenceDoc is the manifest written next to a MetaImage frame sequence:
// dims is an [X, Y, Z] array and the frames are the *.mhd files beside it.
type sequenceDoc struct {
	NFrames   *int            `json:"n_frames"`
	Dims      json.RawMessage `json:"dims"`
	TRSeconds *float64        `json:"tr_seconds"`
}

// sniffSequence reports whether the manifest in dir describes a MetaImage
// sequence rather than R8 frames, and the TR it records (0 when absent).
func sniffSequence(dir string) (bool, float64) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return false, 0
	}
	var doc sequenceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, 0
	}
	tr := 0.0
	if doc.TRSeconds != nil {
		tr = *doc.TRSeconds
	}
	dims := bytes.TrimSpace(doc.Dims)
	if doc.NFrames != nil || (len(dims) > 0 && dims[0] == '[') {
		return true, tr
	}
	if headers, _ := filepath.Glob(filepath.Join(dir, "*.mhd")); len(headers) > 0 {
		return true, tr
	}
	return false, 0
}

func readManifest(dir string) (*manifestDoc, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if doc.Dims.X <= 0 || doc.Dims.Y <= 0 || doc.Dims.Z <= 0 {
		return nil, fmt.Errorf("%w: dims %dx%dx%d", ErrManifest, doc.Dims.X, doc.Dims.Y, doc.Dims.Z)
	}
	if doc.Format != "" && doc.Format != "R8" {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrManifest, doc.Format)
	}
	switch doc.ByteOrder {
	case "", "x_fastest", "z_fastest":
	default:
		return nil, fmt.Errorf("%w: unsupported byte order %q", ErrManifest, doc.ByteOrder)
	}
	return &doc, nil
}

func (m *Manifest) series(doc *manifestDoc) (string, []frameRef, error) {
	s := m.Series
	if s == "" {
		switch {
		case doc.PSC.Enabled && len(doc.PSC.Frames) > 0:
			s = SeriesPSC
		case len(doc.Frames) > 0:
			s = SeriesRaw
		default:
			s = SeriesAnatomy
		}
	}
	switch s {
	case SeriesPSC:
		return s, doc.PSC.Frames, nil
	case SeriesRaw:
		return s, doc.Frames, nil
	case SeriesAnatomy:
		if doc.Anatomy == nil || doc.Anatomy.File == "" {
			return s, nil, fmt.Errorf("%w: no anatomy volume", ErrManifest)
		}
		return s, []frameRef{{File: doc.Anatomy.File, T: 0}}, nil
	}
	return s, nil, fmt.Errorf("%w: unknown series %q", ErrManifest, s)
}

// Load implements Source.
func (m *Manifest) Load() (*field.Field, Info, error) {
	doc, err := readManifest(m.Dir)
	if err != nil {
		return nil, Info{}, err
	}
	name, frames, err := m.series(doc)
	if err != nil {
		return nil, Info{}, err
	}

	steps := doc.Timepoints
	if name == SeriesAnatomy {
		steps = 1
	}
	for _, fr := range frames {
		if fr.T+1 > steps {
			steps = fr.T + 1
		}
	}
	dims := field.Dims{T: steps, X: doc.Dims.X, Y: doc.Dims.Y, Z: doc.Dims.Z}
	if !dims.Valid() {
		return nil, Info{}, fmt.Errorf("%w: no frames in series %s", ErrManifest, name)
	}

	info := Info{
		Name: filepath.Base(m.Dir) + "/" + name,
		Dims: dims,
		TR:   doc.TRSeconds,
	}
	if !(info.TR > 0) {
		info.TR = DefaultTR
	}
	for i := 0; i < 3 && i < len(doc.VoxelSizeMM); i++ {
		info.VoxelSize[i] = doc.VoxelSizeMM[i]
	}

	data := make([]float32, dims.Len())
	seen := make([]bool, steps)
	voxels := dims.Voxels()
	for _, fr := range frames {
		if fr.T < 0 || fr.T >= steps || seen[fr.T] {
			continue
		}
		seen[fr.T] = true
		dst := data[fr.T*voxels : (fr.T+1)*voxels]
		info.ZeroFilled += readR8(filepath.Join(m.Dir, fr.File), dst, dims, doc.ByteOrder == "z_fastest")
	}
	for _, ok := range seen {
		if !ok {
			info.ZeroFilled += voxels
		}
	}
	warnZeroFilled(info)

	f, err := field.New(dims, data)
	if err != nil {
		return nil, Info{}, err
	}
	return f, info, nil
}

// readR8 decodes one 8-bit frame into dst (x fastest) and returns how many
// samples were missing.
func readR8(path string, dst []float32, dims field.Dims, zFastest bool) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return len(dst)
	}
	missing := 0
	if len(raw) < len(dst) {
		missing = len(dst) - len(raw)
	}
	i := 0
	for z := 0; z < dims.Z; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				src := i
				if zFastest {
					src = (x*dims.Y+y)*dims.Z + z
				}
				if src < len(raw) {
					dst[i] = float32(raw[src]) / 255
				}
				i++
			}
		}
	}
	return missing
}
