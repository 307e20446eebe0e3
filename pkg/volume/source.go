// Package volume provides the 3D scan stores that slices are read from.
// A Source is expected to be slow (disk or network) and safe for concurrent
// reads; callers never mutate what it returns.
package volume

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
)

// Source is a read-only 3D volume that yields 2D slices.
type Source interface {
	// Shape returns the extent of the volume along its three axes.
	Shape() models.Shape

	// ReadSlice returns the samples at position index along axis, restricted
	// to rows on the first remaining axis and cols on the second.
	ReadSlice(axis, index int, rows, cols models.Span) (*mat.Dense, error)
}

// ErrInvalidWindow is returned when a slice window falls outside the volume
// or is empty.
var ErrInvalidWindow = errors.New("invalid slice window")

// WindowError describes which bound of a window is invalid.
type WindowError struct {
	Axis   string
	Span   models.Span
	Extent int
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%v: %s range [%d,%d) not within [0,%d)",
		ErrInvalidWindow, e.Axis, e.Span.Start, e.Span.End, e.Extent)
}

func (e *WindowError) Unwrap() error { return ErrInvalidWindow }

// ResolveWindow turns a session window into absolute row and column spans for
// slices taken across axis. Unset ends default to the full extent.
func ResolveWindow(shape models.Shape, axis int, w models.Window) (rows, cols models.Span, err error) {
	if axis < 0 || axis > 2 {
		return rows, cols, fmt.Errorf("axis %d out of range [0,2]", axis)
	}
	rowAxis, colAxis := models.PlaneAxes(axis)

	rows = models.Span{Start: w.StartY, End: w.EndY}
	if rows.End == 0 {
		rows.End = shape[rowAxis]
	}
	cols = models.Span{Start: w.StartX, End: w.EndX}
	if cols.End == 0 {
		cols.End = shape[colAxis]
	}

	if err := checkSpan("y", rows, shape[rowAxis]); err != nil {
		return rows, cols, err
	}
	if err := checkSpan("x", cols, shape[colAxis]); err != nil {
		return rows, cols, err
	}
	return rows, cols, nil
}

func checkSpan(name string, s models.Span, extent int) error {
	if s.Start < 0 || s.End > extent || s.Start >= s.End {
		return &WindowError{Axis: name, Span: s, Extent: extent}
	}
	return nil
}

// checkRequest validates a ReadSlice call against the volume shape.
func checkRequest(shape models.Shape, axis, index int, rows, cols models.Span) error {
	if axis < 0 || axis > 2 {
		return fmt.Errorf("axis %d out of range [0,2]", axis)
	}
	if index < 0 || index >= shape[axis] {
		return fmt.Errorf("index %d out of range [0,%d) on axis %d", index, shape[axis], axis)
	}
	rowAxis, colAxis := models.PlaneAxes(axis)
	if err := checkSpan("y", rows, shape[rowAxis]); err != nil {
		return err
	}
	return checkSpan("x", cols, shape[colAxis])
}

// voxel maps a (slice index, row, col) triple back to volume coordinates.
func voxel(axis, index, r, c int) (i0, i1, i2 int) {
	switch axis {
	case 0:
		return index, r, c
	case 1:
		return r, index, c
	default:
		return r, c, index
	}
}
