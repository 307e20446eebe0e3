package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory names used by the conversion tool, relative to its working
// directory.
const (
	PointsDir = "umbilicus_points"
	OBJDir    = "umbilicus_obj"
	TXTDir    = "umbilicus_txt"
)

// OutputDir returns the directory conversions into f are written to.
func OutputDir(root string, f Format) string {
	switch f {
	case OBJ:
		return filepath.Join(root, OBJDir)
	case TXT:
		return filepath.Join(root, TXTDir)
	}
	return filepath.Join(root, PointsDir)
}

// ConvertFile reads a JSON point file and writes it as format f into
// outDir, keeping the file stem. It returns the path written.
func ConvertFile(jsonPath, outDir string, f Format) (string, error) {
	points, err := ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", jsonPath, err)
	}
	stem := strings.TrimSuffix(filepath.Base(jsonPath), filepath.Ext(jsonPath))
	out := filepath.Join(outDir, stem+f.Ext())
	if err := WriteFile(out, f, points); err != nil {
		return "", err
	}
	return out, nil
}

// ConvertDir converts every .json file in srcDir into each format, writing
// into the per-format directories under root. It returns the paths written.
func ConvertDir(srcDir, root string, formats []Format) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		for _, f := range formats {
			out, err := ConvertFile(filepath.Join(srcDir, e.Name()), OutputDir(root, f), f)
			if err != nil {
				return written, err
			}
			written = append(written, out)
		}
	}
	return written, nil
}
