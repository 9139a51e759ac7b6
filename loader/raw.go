package loader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pthm-cable/fieldview/field"
)

// Raw reads a headerless file of float32 samples in field order (x fastest,
// then y, z, t). A short file is zero-filled.
type Raw struct {
	Path  string
	Dims  field.Dims
	Order binary.ByteOrder // little endian when nil
	TR    float64
}

// Load implements Source.
func (r *Raw) Load() (*field.Field, Info, error) {
	if !r.Dims.Valid() {
		return nil, Info{}, fmt.Errorf("load %s: %w", r.Path, field.ErrEmptyField)
	}
	fh, err := os.Open(r.Path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load raw: %w", err)
	}
	defer fh.Close()

	order := r.Order
	if order == nil {
		order = binary.LittleEndian
	}
	data := make([]float32, r.Dims.Len())
	n, err := readFloats(bufio.NewReader(fh), order, data)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load raw %s: %w", r.Path, err)
	}

	info := Info{
		Name:       filepath.Base(r.Path),
		Dims:       r.Dims,
		TR:         r.TR,
		ZeroFilled: len(data) - n,
	}
	if !(info.TR > 0) {
		info.TR = DefaultTR
	}
	warnZeroFilled(info)

	f, err := field.New(r.Dims, data)
	if err != nil {
		return nil, Info{}, err
	}
	return f, info, nil
}

// readFloats fills dst from rd and returns how many samples were read before
// EOF. A trailing partial sample counts as missing.
func readFloats(rd io.Reader, order binary.ByteOrder, dst []float32) (int, error) {
	var b [4]byte
	for i := range dst {
		if _, err := io.ReadFull(rd, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return i, nil
			}
			return i, err
		}
		dst[i] = math.Float32frombits(order.Uint32(b[:]))
	}
	return len(dst), nil
}

// WriteRaw writes f in the layout Raw reads, little endian.
func WriteRaw(path string, f *field.Field) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write raw: %w", err)
	}
	w := bufio.NewWriter(fh)
	d := f.Dims()
	var b [4]byte
	for t := 0; t < d.T; t++ {
		for _, v := range f.TimeSlice(t) {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			if _, err := w.Write(b[:]); err != nil {
				fh.Close()
				return fmt.Errorf("write raw: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("write raw: %w", err)
	}
	return fh.Close()
}
