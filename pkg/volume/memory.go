package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
)

// Memory is a volume held entirely in RAM as a row-major buffer,
// index = i0*d1*d2 + i1*d2 + i2.
type Memory struct {
	data  []float64
	shape models.Shape
}

// NewMemory wraps data as a volume of the given shape.
func NewMemory(data []float64, shape models.Shape) (*Memory, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid volume shape %v", shape)
	}
	if len(data) != shape.Voxels() {
		return nil, fmt.Errorf("volume data has %d samples, shape %v needs %d", len(data), shape, shape.Voxels())
	}
	return &Memory{data: data, shape: shape}, nil
}

// Shape implements Source.
func (m *Memory) Shape() models.Shape {
	return m.shape
}

// ReadSlice implements Source. The returned matrix owns a copy of the samples.
func (m *Memory) ReadSlice(axis, index int, rows, cols models.Span) (*mat.Dense, error) {
	if err := checkRequest(m.shape, axis, index, rows, cols); err != nil {
		return nil, err
	}

	d1, d2 := m.shape[1], m.shape[2]
	out := make([]float64, rows.Len()*cols.Len())
	for r := rows.Start; r < rows.End; r++ {
		for c := cols.Start; c < cols.End; c++ {
			i0, i1, i2 := voxel(axis, index, r, c)
			out[(r-rows.Start)*cols.Len()+(c-cols.Start)] = m.data[i0*d1*d2+i1*d2+i2]
		}
	}
	return mat.NewDense(rows.Len(), cols.Len(), out), nil
}

// NewSynthetic builds a volume with a bright tube winding along axis 0 on a
// dim background. It stands in for a real scan in demos and tests.
func NewSynthetic(shape models.Shape) (*Memory, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid volume shape %v", shape)
	}
	d0, d1, d2 := shape[0], shape[1], shape[2]
	data := make([]float64, shape.Voxels())

	radius := math.Max(1, float64(min(d1, d2))/20)
	orbit := float64(min(d1, d2)) / 8
	for z := 0; z < d0; z++ {
		t := 2 * math.Pi * float64(z) / float64(d0)
		cy := float64(d1)/2 + orbit*math.Sin(t)
		cx := float64(d2)/2 + orbit*math.Cos(t)
		for y := 0; y < d1; y++ {
			for x := 0; x < d2; x++ {
				v := 0.1 + 0.05*math.Sin(float64(x+y)/7)
				if math.Hypot(float64(y)-cy, float64(x)-cx) <= radius {
					v = 1
				}
				data[z*d1*d2+y*d2+x] = v
			}
		}
	}
	return &Memory{data: data, shape: shape}, nil
}

// TubeCenter returns where NewSynthetic places the tube on slice z.
func TubeCenter(shape models.Shape, z int) (y, x int) {
	t := 2 * math.Pi * float64(z) / float64(shape[0])
	orbit := float64(min(shape[1], shape[2])) / 8
	return int(math.Round(float64(shape[1])/2 + orbit*math.Sin(t))),
		int(math.Round(float64(shape[2])/2 + orbit*math.Cos(t)))
}
