// Package export writes umbilicus point lists in the formats downstream
// tools consume: a JSON array of [z, y, x] triples, a Wavefront OBJ
// polyline and a plain "z,y,x" text file.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"umbilicus/internal/models"
)

// Format is an output file format.
type Format string

const (
	JSON Format = "json"
	OBJ  Format = "obj"
	TXT  Format = "txt"
)

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ParseFormats parses format names, accepting comma separated lists.
func ParseFormats(names ...string) ([]Format, error) {
	var out []Format
	seen := make(map[Format]bool)
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			if f == "" {
				continue
			}
			switch f {
			case JSON, OBJ, TXT:
			default:
				return nil, fmt.Errorf("unknown output format %q (want json, obj or txt)", part)
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// BaseName returns the file name, without extension, used for a scan's
// points: "<name>_zyx_umbilicus_points", or "zyx_umbilicus_points" when
// name is empty.
func BaseName(name string) string {
	if name == "" {
		return "zyx_umbilicus_points"
	}
	return name + "_zyx_umbilicus_points"
}

// WriteJSON writes points as an indented JSON array of [z, y, x] arrays.
func WriteJSON(w io.Writer, points []models.Point) error {
	if points == nil {
		points = []models.Point{}
	}
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadJSON reads a point list written by WriteJSON.
func ReadJSON(r io.Reader) ([]models.Point, error) {
	var points []models.Point
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("error decoding points: %w", err)
	}
	return points, nil
}

// WriteOBJ writes one vertex per point followed by line elements joining
// consecutive vertices.
func WriteOBJ(w io.Writer, points []models.Point) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		fmt.Fprintf(bw, "v %d %d %d\n", p.Z, p.Y, p.X)
	}
	for i := 1; i < len(points); i++ {
		fmt.Fprintf(bw, "l %d %d\n", i, i+1)
	}
	return bw.Flush()
}

// WriteTXT writes one "z,y,x" line per point.
func WriteTXT(w io.Writer, points []models.Point) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		fmt.Fprintf(bw, "%d,%d,%d\n", p.Z, p.Y, p.X)
	}
	return bw.Flush()
}

// Encode writes points in format f.
func Encode(w io.Writer, f Format, points []models.Point) error {
	switch f {
	case JSON:
		return WriteJSON(w, points)
	case OBJ:
		return WriteOBJ(w, points)
	case TXT:
		return WriteTXT(w, points)
	}
	return fmt.Errorf("unknown output format %q", f)
}

// WriteFile atomically replaces path with points encoded in format f.
func WriteFile(path string, f Format, points []models.Point) error {
	var buf bytes.Buffer
	if err := Encode(&buf, f, points); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a JSON point file.
func ReadFile(path string) ([]models.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadJSON(bytes.NewReader(data))
}

// Writer persists a finished session in every configured format.
type Writer struct {
	Dir     string
	Formats []Format
	Logger  *slog.Logger

	// Written lists the files produced by the last Save.
	Written []string
}

// Save writes <Dir>/<BaseName(name)>.<ext> for each format. JSON is written
// when no format is configured.
func (w *Writer) Save(name string, points []models.Point) error {
	formats := w.Formats
	if len(formats) == 0 {
		formats = []Format{JSON}
	}

	w.Written = w.Written[:0]
	for _, f := range formats {
		path := filepath.Join(w.Dir, BaseName(name)+f.Ext())
		if err := WriteFile(path, f, points); err != nil {
			return err
		}
		w.Written = append(w.Written, path)
		if w.Logger != nil {
			w.Logger.Info("saved points", "count", len(points), "path", path, "format", f)
		}
	}
	return nil
}
