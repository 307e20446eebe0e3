package volume

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
)

// Stack is a volume stored as a directory of 2D slice images, one file per
// position on axis 0. Files are ordered by the number in their name, so
// "slice_2.png" comes before "slice_10.png". Images are decoded on demand and
// never held in memory; reading across axis 1 or 2 decodes every file in
// the row range and is correspondingly slow.
type Stack struct {
	files  []string
	width  int
	height int
}

// OpenStack lists the JPEG and PNG files in dir and reads the dimensions of
// the first one. All slices are assumed to share those dimensions.
func OpenStack(dir string) (*Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPG or PNG images found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})

	f, err := os.Open(files[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read image header %s: %w", files[0], err)
	}

	return &Stack{files: files, width: cfg.Width, height: cfg.Height}, nil
}

// Shape implements Source: (number of files, image height, image width).
func (s *Stack) Shape() models.Shape {
	return models.Shape{len(s.files), s.height, s.width}
}

// ReadSlice implements Source.
func (s *Stack) ReadSlice(axis, index int, rows, cols models.Span) (*mat.Dense, error) {
	shape := s.Shape()
	if err := checkRequest(shape, axis, index, rows, cols); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows.Len(), cols.Len(), nil)
	if axis == 0 {
		img, err := loadImage(s.files[index])
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", s.files[index], err)
		}
		for r := rows.Start; r < rows.End; r++ {
			for c := cols.Start; c < cols.End; c++ {
				out.Set(r-rows.Start, c-cols.Start, gray(img, c, r))
			}
		}
		return out, nil
	}

	// Rows run over files; columns run along the image axis that is not fixed.
	for r := rows.Start; r < rows.End; r++ {
		img, err := loadImage(s.files[r])
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", s.files[r], err)
		}
		for c := cols.Start; c < cols.End; c++ {
			x, y := c, index
			if axis == 2 {
				x, y = index, c
			}
			out.Set(r-rows.Start, c-cols.Start, gray(img, x, y))
		}
	}
	return out, nil
}

// gray returns the red channel of the pixel scaled to [0, 1].
func gray(img image.Image, x, y int) float64 {
	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return float64(r) / 65535.0
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Decode(file)
	}
	return jpeg.Decode(file)
}
