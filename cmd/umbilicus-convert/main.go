package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"umbilicus/pkg/export"
)

func main() {
	root := flag.String("root", ".", "Directory holding umbilicus_points/")
	formatNames := flag.StringSlice("format", []string{"obj", "txt"}, "Formats to convert to: obj, txt")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [points.json]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "Converts one file, or every JSON file in %s/, to OBJ and text.\n\n", export.PointsDir)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(1)
	}

	formats, err := export.ParseFormats(*formatNames...)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(formats) == 0 {
		log.Fatalf("No output format given")
	}

	srcDir := filepath.Join(*root, export.PointsDir)

	var written []string
	if flag.NArg() == 1 {
		name := flag.Arg(0)
		if !strings.HasSuffix(strings.ToLower(name), ".json") {
			name += ".json"
		}
		path := name
		if filepath.Base(name) == name {
			path = filepath.Join(srcDir, name)
		}
		for _, f := range formats {
			out, err := export.ConvertFile(path, export.OutputDir(*root, f), f)
			if err != nil {
				log.Fatalf("Conversion failed: %v", err)
			}
			written = append(written, out)
		}
	} else {
		written, err = export.ConvertDir(srcDir, *root, formats)
		if err != nil {
			log.Fatalf("Conversion failed: %v", err)
		}
	}

	for _, path := range written {
		fmt.Printf("Written: %s\n", path)
	}
	fmt.Printf("Converted %d file(s).\n", len(written))
}
