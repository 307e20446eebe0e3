package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Shape is the extent of a 3D volume along its three axes (d0, d1, d2).
type Shape [3]int

// Voxels returns the total number of samples in a volume of this shape.
func (s Shape) Voxels() int {
	return s[0] * s[1] * s[2]
}

// Valid reports whether every axis has a positive extent.
func (s Shape) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// PlaneAxes returns the two axes that span a slice taken across axis.
// The first is the row axis (Y on screen), the second the column axis (X).
func PlaneAxes(axis int) (rows, cols int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// Span is a half-open range [Start, End) along one axis.
type Span struct {
	Start int
	End   int
}

// Len returns the number of positions covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Window is the rectangle applied to the two non-traversal axes of every
// slice in a session. A zero EndX or EndY means the full extent of that axis.
type Window struct {
	StartX int `yaml:"sx"`
	StartY int `yaml:"sy"`
	EndX   int `yaml:"ex"`
	EndY   int `yaml:"ey"`
}

// Point is one umbilicus coordinate in absolute volume space.
// It serializes as the array [z, y, x].
type Point struct {
	Z int
	Y int
	X int
}

func (p Point) String() string {
	return fmt.Sprintf("z=%d, y=%d, x=%d", p.Z, p.Y, p.X)
}

// MarshalJSON encodes the point as [z, y, x].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{p.Z, p.Y, p.X})
}

// UnmarshalJSON decodes a [z, y, x] array.
func (p *Point) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 3 {
		return fmt.Errorf("point must have 3 coordinates, got %d", len(v))
	}
	p.Z, p.Y, p.X = v[0], v[1], v[2]
	return nil
}

// ScrollName builds the scan label used to name output files,
// e.g. "s1_54kev_7.91um" or "s5B_53kev_3.24um".
func ScrollName(id, ab string, energy int, resolution float64) string {
	res := strconv.FormatFloat(resolution, 'f', -1, 64)
	if !strings.Contains(res, ".") {
		res += ".0"
	}
	return fmt.Sprintf("s%s%s_%dkev_%sum", id, ab, energy, res)
}
