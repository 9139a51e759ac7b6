package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pthm-cable/fieldview/field"
)

// MetaImage reads a sequence of 3-D MetaImage (.mhd + raw) frames, one per
// time point, in lexical file order. Frames whose size differs from the
// first are zero-filled.
type MetaImage struct {
	Pattern string // a single .mhd path or a glob
	TR      float64
}

type mhdHeader struct {
	dims     [3]int
	spacing  [3]float32
	elemType string
	msb      bool
	dataFile string
}

func (h mhdHeader) elemSize() int {
	switch h.elemType {
	case "MET_UCHAR", "MET_CHAR":
		return 1
	case "MET_SHORT", "MET_USHORT":
		return 2
	case "MET_FLOAT", "MET_INT", "MET_UINT":
		return 4
	}
	return 0
}

func readMHD(path string) (mhdHeader, error) {
	h := mhdHeader{spacing: [3]float32{1, 1, 1}}
	fh, err := os.Open(path)
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "NDims":
			if val != "3" {
				return h, fmt.Errorf("%w: %s: NDims %s", ErrManifest, path, val)
			}
		case "DimSize":
			for i, s := range strings.Fields(val) {
				if i < 3 {
					h.dims[i], _ = strconv.Atoi(s)
				}
			}
		case "ElementSpacing":
			for i, s := range strings.Fields(val) {
				if i < 3 {
					v, _ := strconv.ParseFloat(s, 32)
					h.spacing[i] = float32(v)
				}
			}
		case "ElementType":
			h.elemType = val
		case "ElementByteOrderMSB", "BinaryDataByteOrderMSB":
			h.msb = strings.EqualFold(val, "true")
		case "ElementDataFile":
			h.dataFile = val
		}
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if h.dims[0] <= 0 || h.dims[1] <= 0 || h.dims[2] <= 0 {
		return h, fmt.Errorf("%w: %s: DimSize %v", ErrManifest, path, h.dims)
	}
	if h.elemSize() == 0 {
		return h, fmt.Errorf("%w: %s: ElementType %q", ErrManifest, path, h.elemType)
	}
	if h.dataFile == "" || h.dataFile == "LOCAL" {
		return h, fmt.Errorf("%w: %s: external ElementDataFile required", ErrManifest, path)
	}
	h.dataFile = filepath.Join(filepath.Dir(path), h.dataFile)
	return h, nil
}

// Load implements Source.
func (m *MetaImage) Load() (*field.Field, Info, error) {
	paths, err := filepath.Glob(m.Pattern)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load metaimage: %w", err)
	}
	if len(paths) == 0 {
		return nil, Info{}, fmt.Errorf("%w: no headers match %s", ErrManifest, m.Pattern)
	}
	sort.Strings(paths)

	first, err := readMHD(paths[0])
	if err != nil {
		return nil, Info{}, err
	}
	dims := field.Dims{T: len(paths), X: first.dims[0], Y: first.dims[1], Z: first.dims[2]}
	info := Info{
		Name:      filepath.Base(m.Pattern),
		Dims:      dims,
		TR:        m.TR,
		VoxelSize: first.spacing,
	}
	if !(info.TR > 0) {
		info.TR = DefaultTR
	}

	voxels := dims.Voxels()
	data := make([]float32, dims.Len())
	for t, p := range paths {
		dst := data[t*voxels : (t+1)*voxels]
		h, err := readMHD(p)
		if err != nil || h.dims != first.dims {
			info.ZeroFilled += voxels
			continue
		}
		info.ZeroFilled += readElements(h, dst)
	}
	warnZeroFilled(info)

	f, err := field.New(dims, data)
	if err != nil {
		return nil, Info{}, err
	}
	return f, info, nil
}

// readElements decodes the raw file of h into dst and returns the number of
// missing samples. 8-bit data is mapped to [0, 1]; wider types are kept as is.
func readElements(h mhdHeader, dst []float32) int {
	raw, err := os.ReadFile(h.dataFile)
	if err != nil {
		return len(dst)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if h.msb {
		order = binary.BigEndian
	}
	size := h.elemSize()
	n := min(len(raw)/size, len(dst))
	for i := 0; i < n; i++ {
		b := raw[i*size : (i+1)*size]
		switch h.elemType {
		case "MET_UCHAR":
			dst[i] = float32(b[0]) / 255
		case "MET_CHAR":
			dst[i] = float32(int8(b[0])) / 127
		case "MET_SHORT":
			dst[i] = float32(int16(order.Uint16(b)))
		case "MET_USHORT":
			dst[i] = float32(order.Uint16(b))
		case "MET_INT":
			dst[i] = float32(int32(order.Uint32(b)))
		case "MET_UINT":
			dst[i] = float32(order.Uint32(b))
		case "MET_FLOAT":
			dst[i] = math.Float32frombits(order.Uint32(b))
		}
	}
	return len(dst) - n
}
