// Package render shows slices to the operator and collects their clicks.
//
// The terminal renderer writes each slice to a JPEG preview that an external
// image viewer can keep open, and reads the picked pixel from the prompt.
package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Contrast limits, as quantiles of the slice's intensity distribution.
const (
	LowQuantile  = 0.01
	HighQuantile = 0.99
)

// Levels returns the intensities mapped to black and white when the slice
// is rendered. Outliers such as saturated voxels fall outside the range.
func Levels(slice *mat.Dense) (lo, hi float64) {
	values := values(slice)
	if len(values) == 0 {
		return 0, 0
	}
	sort.Float64s(values)
	lo = stat.Quantile(LowQuantile, stat.Empirical, values, nil)
	hi = stat.Quantile(HighQuantile, stat.Empirical, values, nil)
	return lo, hi
}

// Summary returns the mean and standard deviation of the slice intensities.
func Summary(slice *mat.Dense) (mean, std float64) {
	values := values(slice)
	if len(values) == 0 {
		return 0, 0
	}
	return stat.MeanStdDev(values, nil)
}

// Image converts slice to an 8-bit grayscale image with contrast stretched
// between Levels. Row r of the slice becomes image row r.
func Image(slice *mat.Dense) *image.Gray {
	rows, cols := slice.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	lo, hi := Levels(slice)
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := (slice.At(y, x) - lo) * scale
			img.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, math.Round(v))))})
		}
	}
	return img
}

// SavePreview encodes img as JPEG and atomically replaces filename, so a
// viewer watching the file never reads a partial image.
func SavePreview(img image.Image, filename string) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(filename, &buf)
}

func values(slice *mat.Dense) []float64 {
	if slice == nil {
		return nil
	}
	rows, cols := slice.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, slice.RawRowView(r)...)
	}
	return out
}
