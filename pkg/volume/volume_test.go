package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"umbilicus/internal/models"
)

// newPatternVolume fills a volume with value = i0*10000 + i1*100 + i2 so that
// every sample identifies its own coordinates.
func newPatternVolume(t *testing.T, shape models.Shape) *Memory {
	t.Helper()
	data := make([]float64, shape.Voxels())
	for i0 := 0; i0 < shape[0]; i0++ {
		for i1 := 0; i1 < shape[1]; i1++ {
			for i2 := 0; i2 < shape[2]; i2++ {
				data[i0*shape[1]*shape[2]+i1*shape[2]+i2] = float64(i0*10000 + i1*100 + i2)
			}
		}
	}
	m, err := NewMemory(data, shape)
	if err != nil {
		t.Fatalf("Failed to create memory volume: %v", err)
	}
	return m
}

// TestMemoryReadSlice verifies slices along every axis pick the right samples
func TestMemoryReadSlice(t *testing.T) {
	shape := models.Shape{4, 5, 6}
	vol := newPatternVolume(t, shape)

	tests := []struct {
		axis, index int
		rows, cols  models.Span
		want        func(r, c int) float64
	}{
		{0, 2, models.Span{Start: 1, End: 4}, models.Span{Start: 2, End: 6}, func(r, c int) float64 { return float64(2*10000 + r*100 + c) }},
		{1, 3, models.Span{Start: 0, End: 4}, models.Span{Start: 0, End: 6}, func(r, c int) float64 { return float64(r*10000 + 3*100 + c) }},
		{2, 5, models.Span{Start: 1, End: 3}, models.Span{Start: 0, End: 5}, func(r, c int) float64 { return float64(r*10000 + c*100 + 5) }},
	}

	for _, tt := range tests {
		slice, err := vol.ReadSlice(tt.axis, tt.index, tt.rows, tt.cols)
		if err != nil {
			t.Fatalf("Failed to read slice axis=%d index=%d: %v", tt.axis, tt.index, err)
		}

		r, c := slice.Dims()
		if r != tt.rows.Len() || c != tt.cols.Len() {
			t.Errorf("Expected dims %dx%d, got %dx%d", tt.rows.Len(), tt.cols.Len(), r, c)
		}

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				want := tt.want(tt.rows.Start+i, tt.cols.Start+j)
				if got := slice.At(i, j); got != want {
					t.Errorf("axis %d: at (%d,%d) expected %v, got %v", tt.axis, i, j, want, got)
				}
			}
		}
	}
}

// TestMemoryReadSliceOutOfRange verifies invalid requests are rejected
func TestMemoryReadSliceOutOfRange(t *testing.T) {
	vol := newPatternVolume(t, models.Shape{3, 3, 3})
	full := models.Span{Start: 0, End: 3}

	if _, err := vol.ReadSlice(0, 3, full, full); err == nil {
		t.Error("Expected error for index past the end of the axis")
	}
	if _, err := vol.ReadSlice(3, 0, full, full); err == nil {
		t.Error("Expected error for axis 3")
	}
	if _, err := vol.ReadSlice(0, 0, models.Span{Start: 0, End: 4}, full); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}

func TestNewMemoryRejectsMismatchedData(t *testing.T) {
	if _, err := NewMemory(make([]float64, 5), models.Shape{2, 2, 2}); err == nil {
		t.Error("Expected error for data shorter than shape")
	}
	if _, err := NewMemory(nil, models.Shape{0, 2, 2}); err == nil {
		t.Error("Expected error for empty shape")
	}
}

func TestResolveWindow(t *testing.T) {
	shape := models.Shape{100, 200, 300}

	rows, cols, err := ResolveWindow(shape, 0, models.Window{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rows != (models.Span{Start: 0, End: 200}) || cols != (models.Span{Start: 0, End: 300}) {
		t.Errorf("Expected full extent, got rows=%v cols=%v", rows, cols)
	}

	rows, cols, err = ResolveWindow(shape, 2, models.Window{StartX: 10, StartY: 20, EndX: 110, EndY: 90})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rows != (models.Span{Start: 20, End: 90}) || cols != (models.Span{Start: 10, End: 110}) {
		t.Errorf("Unexpected spans rows=%v cols=%v", rows, cols)
	}

	invalid := []models.Window{
		{StartX: 50, EndX: 50},
		{StartY: 10, EndY: 5},
		{EndX: 301},
		{StartY: -1},
	}
	for _, w := range invalid {
		_, _, err := ResolveWindow(shape, 0, w)
		var we *WindowError
		if !errors.As(err, &we) || !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("Window %+v: expected *WindowError, got %v", w, err)
		}
	}
}

// TestRawReadSlice writes a uint16 volume to disk and reads it back along
// each axis, comparing against the in-memory reference.
func TestRawReadSlice(t *testing.T) {
	shape := models.Shape{3, 4, 5}
	ref := newPatternVolume(t, shape)

	buf := make([]byte, shape.Voxels()*2)
	for i, v := range ref.data {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int(v)%65536))
	}
	path := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("Failed to write raw volume: %v", err)
	}

	raw, err := OpenRaw(path, shape, Uint16)
	if err != nil {
		t.Fatalf("Failed to open raw volume: %v", err)
	}
	defer raw.Close()

	for axis := 0; axis < 3; axis++ {
		rowAxis, colAxis := models.PlaneAxes(axis)
		rows := models.Span{Start: 1, End: shape[rowAxis]}
		cols := models.Span{Start: 1, End: shape[colAxis] - 1}

		want, err := ref.ReadSlice(axis, 2, rows, cols)
		if err != nil {
			t.Fatalf("Reference read failed: %v", err)
		}
		got, err := raw.ReadSlice(axis, 2, rows, cols)
		if err != nil {
			t.Fatalf("Raw read failed on axis %d: %v", axis, err)
		}

		r, c := want.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if math.Abs(want.At(i, j)-got.At(i, j)) > 0 {
					t.Errorf("axis %d: at (%d,%d) expected %v, got %v", axis, i, j, want.At(i, j), got.At(i, j))
				}
			}
		}
	}
}

func TestOpenRawTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.raw")
	if err := os.WriteFile(path, make([]byte, 10), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := OpenRaw(path, models.Shape{2, 2, 2}, Float32); err == nil {
		t.Error("Expected error for file smaller than shape")
	}
	if _, err := OpenRaw(path, models.Shape{2, 2, 2}, DType("int4")); err == nil {
		t.Error("Expected error for unknown dtype")
	}
}

// TestStackReadSlice builds a directory of PNG slices and checks ordering by
// the number in the filename.
func TestStackReadSlice(t *testing.T) {
	dir := t.TempDir()
	width, height := 6, 4
	// Written out of order on purpose: slice_10 must sort after slice_2.
	for _, z := range []int{10, 2, 1} {
		img := image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(z*1000 + y*10 + x)})
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("slice_%d.png", z)))
		if err != nil {
			t.Fatalf("Failed to create slice: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("Failed to encode slice: %v", err)
		}
		f.Close()
	}

	stack, err := OpenStack(dir)
	if err != nil {
		t.Fatalf("Failed to open stack: %v", err)
	}
	if got := stack.Shape(); got != (models.Shape{3, height, width}) {
		t.Fatalf("Expected shape %v, got %v", models.Shape{3, height, width}, got)
	}

	slice, err := stack.ReadSlice(0, 2, models.Span{Start: 0, End: height}, models.Span{Start: 0, End: width})
	if err != nil {
		t.Fatalf("Failed to read slice: %v", err)
	}
	want := float64(10*1000+3*10+5) / 65535.0
	if math.Abs(slice.At(3, 5)-want) > 1e-9 {
		t.Errorf("Expected %v from slice_10, got %v", want, slice.At(3, 5))
	}

	// Across axis 2: rows are files, columns run down the image.
	side, err := stack.ReadSlice(2, 4, models.Span{Start: 0, End: 3}, models.Span{Start: 0, End: height})
	if err != nil {
		t.Fatalf("Failed to read side slice: %v", err)
	}
	want = float64(2*1000+1*10+4) / 65535.0
	if math.Abs(side.At(1, 1)-want) > 1e-9 {
		t.Errorf("Expected %v from slice_2 at y=1 x=4, got %v", want, side.At(1, 1))
	}
}

func TestDelayedAddsLatency(t *testing.T) {
	vol := newPatternVolume(t, models.Shape{2, 2, 2})
	d := Delayed{Source: vol, Latency: 20 * time.Millisecond}

	start := time.Now()
	if _, err := d.ReadSlice(0, 1, models.Span{Start: 0, End: 2}, models.Span{Start: 0, End: 2}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected at least 20ms latency, got %v", elapsed)
	}
	if d.Shape() != vol.Shape() {
		t.Errorf("Expected wrapped shape %v, got %v", vol.Shape(), d.Shape())
	}
}

func TestSyntheticTube(t *testing.T) {
	shape := models.Shape{8, 64, 64}
	vol, err := NewSynthetic(shape)
	if err != nil {
		t.Fatalf("Failed to build synthetic volume: %v", err)
	}
	for z := 0; z < shape[0]; z++ {
		y, x := TubeCenter(shape, z)
		s, err := vol.ReadSlice(0, z, models.Span{Start: 0, End: 64}, models.Span{Start: 0, End: 64})
		if err != nil {
			t.Fatalf("Failed to read slice %d: %v", z, err)
		}
		if s.At(y, x) != 1 {
			t.Errorf("Slice %d: expected tube at (%d,%d), got %v", z, y, x, s.At(y, x))
		}
	}
}
