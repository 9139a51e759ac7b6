package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/fieldview/field"
)

func writeManifest(t *testing.T, dir string, doc map[string]any) {
	t.Helper()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManifestLoadsPSCFrames(t *testing.T) {
	dir := t.TempDir()
	// 2x2x1 frames; frame 1 is short and frame 2 is missing.
	os.WriteFile(filepath.Join(dir, "psc_0000.vol"), []byte{0, 51, 102, 255}, 0o644)
	os.WriteFile(filepath.Join(dir, "psc_0001.vol"), []byte{255, 255}, 0o644)
	writeManifest(t, dir, map[string]any{
		"dims":          map[string]int{"x": 2, "y": 2, "z": 1},
		"voxel_size_mm": []float32{2, 2, 4},
		"timepoints":    3,
		"tr_seconds":    1.5,
		"format":        "R8",
		"byte_order":    "x_fastest",
		"anatomy":       map[string]string{"file": "anatomy_mean.vol"},
		"psc": map[string]any{
			"enabled": true,
			"frames": []map[string]any{
				{"file": "psc_0000.vol", "t": 0},
				{"file": "psc_0001.vol", "t": 1},
				{"file": "psc_0002.vol", "t": 2},
			},
		},
	})

	f, info, err := (&Manifest{Dir: dir}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if info.Dims != (field.Dims{T: 3, X: 2, Y: 2, Z: 1}) {
		t.Fatalf("dims = %v", info.Dims)
	}
	if info.TR != 1.5 {
		t.Errorf("TR = %v, want 1.5", info.TR)
	}
	if info.ZeroFilled != 2+4 {
		t.Errorf("zero filled = %d, want 6", info.ZeroFilled)
	}
	if got := f.At(0, 1, 0, 0); math.Abs(float64(got-0.2)) > 1e-6 {
		t.Errorf("At(0,1,0,0) = %v, want 0.2", got)
	}
	if got := f.At(0, 1, 1, 0); got != 1 {
		t.Errorf("At(0,1,1,0) = %v, want 1", got)
	}
	if got := f.At(1, 1, 0, 0); got != 1 {
		t.Errorf("short frame head = %v, want 1", got)
	}
	if got := f.At(1, 0, 1, 0); got != 0 {
		t.Errorf("short frame tail = %v, want 0", got)
	}
	if e := info.Extent(); e != [3]float32{1, 1, 1} {
		t.Errorf("extent = %v, want [1 1 1] (4mm by 4mm by 4mm)", e)
	}
}

func TestManifestZFastest(t *testing.T) {
	dir := t.TempDir()
	// z fastest order: (x0,z0) (x0,z1) (x1,z0) (x1,z1)
	os.WriteFile(filepath.Join(dir, "a.vol"), []byte{0, 255, 51, 102}, 0o644)
	writeManifest(t, dir, map[string]any{
		"dims":       map[string]int{"x": 2, "y": 1, "z": 2},
		"timepoints": 1,
		"byte_order": "z_fastest",
		"anatomy":    map[string]string{"file": "a.vol"},
	})
	f, _, err := (&Manifest{Dir: dir, Series: SeriesAnatomy}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if f.At(0, 0, 0, 1) != 1 {
		t.Errorf("(x0,z1) = %v, want 1", f.At(0, 0, 0, 1))
	}
	if math.Abs(float64(f.At(0, 1, 0, 0)-0.2)) > 1e-6 {
		t.Errorf("(x1,z0) = %v, want 0.2", f.At(0, 1, 0, 0))
	}
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{"zero dims", map[string]any{"dims": map[string]int{"x": 0, "y": 1, "z": 1}}},
		{"bad format", map[string]any{"dims": map[string]int{"x": 1, "y": 1, "z": 1}, "format": "R16"}},
		{"bad order", map[string]any{"dims": map[string]int{"x": 1, "y": 1, "z": 1}, "byte_order": "y_fastest"}},
		{"no anatomy", map[string]any{"dims": map[string]int{"x": 1, "y": 1, "z": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.doc)
			if _, _, err := (&Manifest{Dir: dir}).Load(); !errors.Is(err, ErrManifest) {
				t.Errorf("err = %v, want ErrManifest", err)
			}
		})
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{not json"), 0o644)
	if _, _, err := (&Manifest{Dir: dir}).Load(); !errors.Is(err, ErrManifest) {
		t.Errorf("malformed json: err = %v", err)
	}
}

func TestRawRoundTrip(t *testing.T) {
	dims := field.Dims{T: 2, X: 3, Y: 2, Z: 2}
	src, _ := field.FromFunc(dims, func(tt, x, y, z int) float32 {
		return float32(tt*100+x*10+y) - float32(z)/4
	})
	path := filepath.Join(t.TempDir(), "field.f32")
	if err := WriteRaw(path, src); err != nil {
		t.Fatal(err)
	}

	f, info, err := (&Raw{Path: path, Dims: dims}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if info.ZeroFilled != 0 || info.TR != DefaultTR {
		t.Errorf("info = %+v", info)
	}
	for tt := 0; tt < dims.T; tt++ {
		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				for x := 0; x < dims.X; x++ {
					if f.At(tt, x, y, z) != src.At(tt, x, y, z) {
						t.Fatalf("(%d,%d,%d,%d) = %v, want %v", tt, x, y, z, f.At(tt, x, y, z), src.At(tt, x, y, z))
					}
				}
			}
		}
	}
}

func TestRawShortFileZeroFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.f32")
	// One full float (1.0) and a dangling byte.
	os.WriteFile(path, []byte{0, 0, 0x80, 0x3f, 7}, 0o644)

	f, info, err := (&Raw{Path: path, Dims: field.Dims{T: 1, X: 4, Y: 1, Z: 1}}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if info.ZeroFilled != 3 {
		t.Errorf("zero filled = %d, want 3", info.ZeroFilled)
	}
	if f.At(0, 0, 0, 0) != 1 || f.At(0, 1, 0, 0) != 0 {
		t.Errorf("values = %v %v", f.At(0, 0, 0, 0), f.At(0, 1, 0, 0))
	}
}

func TestMetaImageSequence(t *testing.T) {
	dir := t.TempDir()
	header := "ObjectType = Image\nNDims = 3\nDimSize = 2 1 1\nElementType = MET_UCHAR\n" +
		"ElementSpacing = 1 1 2\nElementByteOrderMSB = False\nElementDataFile = %s\n"
	for i, payload := range [][]byte{{0, 255}, {255}} {
		raw := filepath.Join(dir, []string{"frame_0000.raw", "frame_0001.raw"}[i])
		os.WriteFile(raw, payload, 0o644)
		hdr := []byte(fmt.Sprintf(header, filepath.Base(raw)))
		os.WriteFile(filepath.Join(dir, []string{"frame_0000.mhd", "frame_0001.mhd"}[i]), hdr, 0o644)
	}

	src, err := Open(dir, field.Dims{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	f, info, err := src.Load()
	if err != nil {
		t.Fatal(err)
	}
	if info.Dims != (field.Dims{T: 2, X: 2, Y: 1, Z: 1}) {
		t.Fatalf("dims = %v", info.Dims)
	}
	if info.VoxelSize != [3]float32{1, 1, 2} {
		t.Errorf("spacing = %v", info.VoxelSize)
	}
	if f.At(0, 1, 0, 0) != 1 || f.At(1, 0, 0, 0) != 1 {
		t.Errorf("values = %v %v", f.At(0, 1, 0, 0), f.At(1, 0, 0, 0))
	}
	if info.ZeroFilled != 1 {
		t.Errorf("zero filled = %d, want 1", info.ZeroFilled)
	}
}

func TestOpenExportedMetaImageDir(t *testing.T) {
	dir := t.TempDir()
	header := "ObjectType = Image\nNDims = 3\nDimSize = 2 1 1\nElementType = MET_UCHAR\n" +
		"ElementByteOrderMSB = False\nElementDataFile = %s\n"
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("frame_%04d", i)
		os.WriteFile(filepath.Join(dir, name+".raw"), []byte{0, 255}, 0o644)
		os.WriteFile(filepath.Join(dir, name+".mhd"), []byte(fmt.Sprintf(header, name+".raw")), 0o644)
	}

	tests := []struct {
		name   string
		doc    map[string]any
		wantTR float64
	}{
		{"with tr", map[string]any{
			"n_frames": 2, "dims": []int{2, 1, 1}, "dtype": "uint8", "mode": "raw",
			"clamp": []float64{0, 1}, "downsample": 1, "tr_seconds": 1.5,
		}, 1.5},
		{"null tr", map[string]any{"n_frames": 2, "dims": []int{2, 1, 1}, "tr_seconds": nil}, DefaultTR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeManifest(t, dir, tt.doc)
			src, err := Open(dir, field.Dims{}, 0)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := src.(*MetaImage); !ok {
				t.Fatalf("source = %T, want *MetaImage", src)
			}
			f, info, err := src.Load()
			if err != nil {
				t.Fatal(err)
			}
			if info.Dims != (field.Dims{T: 2, X: 2, Y: 1, Z: 1}) {
				t.Errorf("dims = %v", info.Dims)
			}
			if info.TR != tt.wantTR {
				t.Errorf("tr = %v, want %v", info.TR, tt.wantTR)
			}
			if f.At(1, 1, 0, 0) != 1 {
				t.Errorf("value = %v, want 1", f.At(1, 1, 0, 0))
			}
		})
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	dims := field.Dims{T: 3, X: 8, Y: 8, Z: 6}
	a, info, err := (&Synthetic{Dims: dims, Seed: 7}).Load()
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := (&Synthetic{Dims: dims, Seed: 7}).Load()
	if info.Dims != dims {
		t.Fatalf("dims = %v", info.Dims)
	}
	nonzero := 0
	for tt := 0; tt < dims.T; tt++ {
		sa, sb := a.TimeSlice(tt), b.TimeSlice(tt)
		for i := range sa {
			if sa[i] != sb[i] {
				t.Fatalf("seeded fields differ at t=%d i=%d", tt, i)
			}
			if sa[i] != 0 {
				nonzero++
			}
		}
	}
	if nonzero == 0 {
		t.Error("synthetic field is empty")
	}
	if a.At(0, 0, 0, 0) != 0 {
		t.Error("corner outside the blob should be 0")
	}
}

func TestOpenPicksSource(t *testing.T) {
	if s, err := Open("", field.Dims{}, 1); err != nil {
		t.Fatal(err)
	} else if _, ok := s.(*Synthetic); !ok {
		t.Errorf("empty path: %T", s)
	}

	path := filepath.Join(t.TempDir(), "x.f32")
	os.WriteFile(path, nil, 0o644)
	if _, err := Open(path, field.Dims{}, 0); !errors.Is(err, field.ErrShape) {
		t.Errorf("raw without dims: err = %v", err)
	}
	if s, err := Open(path, field.Dims{T: 1, X: 1, Y: 1, Z: 1}, 0); err != nil {
		t.Fatal(err)
	} else if _, ok := s.(*Raw); !ok {
		t.Errorf("raw path: %T", s)
	}
}
