package volume

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
)

// DType is the on-disk sample type of a raw volume file.
type DType string

const (
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// Size returns the number of bytes per sample, or 0 for an unknown type.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (d DType) decode(b []byte) float64 {
	switch d {
	case Uint8:
		return float64(b[0])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

// Raw reads slices straight from a headerless little-endian volume file laid
// out row-major as (d0, d1, d2). Each ReadSlice issues positioned reads, so
// concurrent calls are safe.
type Raw struct {
	file  *os.File
	shape models.Shape
	dtype DType
}

// OpenRaw opens path as a raw volume and checks its size against shape.
func OpenRaw(path string, shape models.Shape, dtype DType) (*Raw, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid volume shape %v", shape)
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening raw volume: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error reading raw volume info: %w", err)
	}
	want := int64(shape.Voxels()) * int64(dtype.Size())
	if info.Size() < want {
		f.Close()
		return nil, fmt.Errorf("raw volume %s has %d bytes, shape %v of %s needs %d", path, info.Size(), shape, dtype, want)
	}

	return &Raw{file: f, shape: shape, dtype: dtype}, nil
}

// Shape implements Source.
func (v *Raw) Shape() models.Shape {
	return v.shape
}

// Close releases the underlying file.
func (v *Raw) Close() error {
	return v.file.Close()
}

// ReadSlice implements Source.
func (v *Raw) ReadSlice(axis, index int, rows, cols models.Span) (*mat.Dense, error) {
	if err := checkRequest(v.shape, axis, index, rows, cols); err != nil {
		return nil, err
	}

	d1, d2 := v.shape[1], v.shape[2]
	size := v.dtype.Size()
	out := mat.NewDense(rows.Len(), cols.Len(), nil)

	// Columns are contiguous on disk unless the slice is taken across the
	// last axis, in which case consecutive columns are d2 samples apart.
	stride := 1
	if axis == 2 {
		stride = d2
	}
	buf := make([]byte, ((cols.Len()-1)*stride+1)*size)

	for r := rows.Start; r < rows.End; r++ {
		i0, i1, i2 := voxel(axis, index, r, cols.Start)
		off := int64(i0*d1*d2+i1*d2+i2) * int64(size)
		if _, err := v.file.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("error reading row %d of slice %d: %w", r, index, err)
		}
		for c := 0; c < cols.Len(); c++ {
			p := c * stride * size
			out.Set(r-rows.Start, c, v.dtype.decode(buf[p:p+size]))
		}
	}
	return out, nil
}
