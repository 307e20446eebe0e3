package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"umbilicus/pkg/collector"
	"umbilicus/pkg/config"
	"umbilicus/pkg/export"
	"umbilicus/pkg/render"
	"umbilicus/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	registerFlags(flag.CommandLine)
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *initConfig)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger := newLogger(os.Stderr, cfg.Output.Verbose)

	src, closeSource, err := openSource(cfg)
	if err != nil {
		log.Fatalf("Failed to open volume: %v", err)
	}
	defer closeSource()

	formats, err := export.ParseFormats(cfg.Output.Formats...)
	if err != nil {
		log.Fatalf("%v", err)
	}
	writer := &export.Writer{Dir: cfg.Output.Dir, Formats: formats, Logger: logger}

	fmt.Println("================================")
	fmt.Println("UMBILICUS POINT COLLECTION")
	fmt.Printf("Volume: %s %v, axis %d, step %d\n", cfg.Source.Kind, src.Shape(), cfg.Collection.ZPos, cfg.Collection.Step)
	fmt.Printf("Output name: %s\n", cfg.Name())
	fmt.Println("Answer each slice with \"x y\", press enter to skip it, q to stop.")
	fmt.Println("================================")

	line := render.NewLiner()
	term := render.NewTerminal(line, cfg.Output.Preview, os.Stdout, logger)

	session, err := collector.NewSession(src, term, writer, collector.Config{
		Step:             cfg.Collection.Step,
		Workers:          cfg.Collection.Workers,
		Axis:             cfg.Collection.ZPos,
		Window:           cfg.Collection.Window,
		SerializeFetches: cfg.Collection.SerializeFetches,
		Name:             cfg.Name(),
		Logger:           logger,
	})
	if err != nil {
		line.Close()
		log.Fatalf("Failed to start session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	points, err := session.Run(ctx)
	line.Close()

	switch {
	case errors.Is(err, collector.ErrAborted), errors.Is(err, context.Canceled):
		fmt.Printf("\nSession stopped after %d points.\n", len(points))
	case err != nil:
		log.Fatalf("Session failed after %d points: %v", len(points), err)
	default:
		fmt.Printf("\nCollected %d points in %.1f seconds.\n", len(points), time.Since(startTime).Seconds())
	}
	for _, path := range writer.Written {
		fmt.Printf("Points saved to: %s\n", path)
	}
}

// registerFlags defines the flags that override configuration values.
func registerFlags(fs *flag.FlagSet) {
	fs.Int("step", 500, "Distance between visited slices")
	fs.Int("workers", 2, "Number of background prefetch workers")
	fs.Int("zpos", 0, "Traversal axis (0, 1 or 2)")
	fs.Int("sx", 0, "Window start along the column axis")
	fs.Int("sy", 0, "Window start along the row axis")
	fs.Int("ex", 0, "Window end along the column axis (0 = full extent)")
	fs.Int("ey", 0, "Window end along the row axis (0 = full extent)")
	fs.Bool("serialize", false, "Never read two slices at the same time")
	fs.String("source", config.SourceSynthetic, "Volume source: raw, stack or synthetic")
	fs.String("path", "", "Raw volume file or image stack directory")
	fs.IntSlice("shape", nil, "Volume shape d0,d1,d2 (raw and synthetic sources)")
	fs.String("dtype", "uint16", "Raw sample type: uint8, uint16, float32 or float64")
	fs.Int("latency", 0, "Artificial delay per slice read in milliseconds")
	fs.String("name", "", "Output name (default: derived from the scroll flags)")
	fs.String("sid", "1", "Scroll id")
	fs.String("ab", "", "Scroll letter suffix")
	fs.Int("energy", 54, "Scan energy in keV")
	fs.Float64("res", 7.91, "Scan resolution in um")
	fs.String("out", ".", "Output directory")
	fs.StringSlice("format", []string{"json"}, "Output formats: json, obj, txt")
	fs.String("preview", "slice_preview.jpg", "JPEG file the current slice is written to")
	fs.BoolP("verbose", "v", false, "Enable debug logging")
}

// applyFlags copies every flag set on the command line over the
// configuration file values.
func applyFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "step":
			cfg.Collection.Step, _ = fs.GetInt(f.Name)
		case "workers":
			cfg.Collection.Workers, _ = fs.GetInt(f.Name)
		case "zpos":
			cfg.Collection.ZPos, _ = fs.GetInt(f.Name)
		case "sx":
			cfg.Collection.Window.StartX, _ = fs.GetInt(f.Name)
		case "sy":
			cfg.Collection.Window.StartY, _ = fs.GetInt(f.Name)
		case "ex":
			cfg.Collection.Window.EndX, _ = fs.GetInt(f.Name)
		case "ey":
			cfg.Collection.Window.EndY, _ = fs.GetInt(f.Name)
		case "serialize":
			cfg.Collection.SerializeFetches, _ = fs.GetBool(f.Name)
		case "source":
			cfg.Source.Kind, _ = fs.GetString(f.Name)
		case "path":
			cfg.Source.Path, _ = fs.GetString(f.Name)
		case "shape":
			cfg.Source.Shape, _ = fs.GetIntSlice(f.Name)
		case "dtype":
			cfg.Source.DType, _ = fs.GetString(f.Name)
		case "latency":
			cfg.Source.LatencyMs, _ = fs.GetInt(f.Name)
		case "name":
			cfg.Output.Name, _ = fs.GetString(f.Name)
		case "sid":
			cfg.Scroll.ID, _ = fs.GetString(f.Name)
		case "ab":
			cfg.Scroll.AB, _ = fs.GetString(f.Name)
		case "energy":
			cfg.Scroll.Energy, _ = fs.GetInt(f.Name)
		case "res":
			cfg.Scroll.Resolution, _ = fs.GetFloat64(f.Name)
		case "out":
			cfg.Output.Dir, _ = fs.GetString(f.Name)
		case "format":
			cfg.Output.Formats, _ = fs.GetStringSlice(f.Name)
		case "preview":
			cfg.Output.Preview, _ = fs.GetString(f.Name)
		case "verbose":
			cfg.Output.Verbose, _ = fs.GetBool(f.Name)
		}
	})
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSource opens the configured volume. The returned func releases any
// file handles and is safe to call when nothing was opened.
func openSource(cfg *config.Config) (volume.Source, func(), error) {
	var (
		src     volume.Source
		closeFn = func() {}
	)

	switch strings.ToLower(cfg.Source.Kind) {
	case config.SourceRaw:
		shape, err := cfg.VolumeShape()
		if err != nil {
			return nil, nil, err
		}
		raw, err := volume.OpenRaw(cfg.Source.Path, shape, volume.DType(strings.ToLower(cfg.Source.DType)))
		if err != nil {
			return nil, nil, err
		}
		src, closeFn = raw, func() { raw.Close() }
	case config.SourceStack:
		stack, err := volume.OpenStack(cfg.Source.Path)
		if err != nil {
			return nil, nil, err
		}
		src = stack
	case config.SourceSynthetic:
		shape, err := cfg.VolumeShape()
		if err != nil {
			return nil, nil, err
		}
		mem, err := volume.NewSynthetic(shape)
		if err != nil {
			return nil, nil, err
		}
		src = mem
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if cfg.Source.LatencyMs > 0 {
		src = volume.Delayed{Source: src, Latency: time.Duration(cfg.Source.LatencyMs) * time.Millisecond}
	}
	return src, closeFn, nil
}
