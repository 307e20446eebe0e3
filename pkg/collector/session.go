// Package collector walks an operator through a volume one slice at a time,
// recording one umbilicus point per slice while upcoming slices are loaded
// in the background.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
	"umbilicus/pkg/prefetch"
	"umbilicus/pkg/volume"
)

// ErrAborted is returned by a Renderer when the operator ends the session
// early. Points recorded before the abort are still persisted.
var ErrAborted = errors.New("session aborted by operator")

// View is what the renderer is asked to display.
type View struct {
	Index      int
	AxisLength int
	Slice      *mat.Dense
	Title      string
}

// Selection is the operator's answer for one slice: a pixel position inside
// the displayed slice, or OK=false when the slice was skipped.
type Selection struct {
	X  int
	Y  int
	OK bool
}

// Renderer shows a slice and blocks until the operator has picked at most
// one point on it.
type Renderer interface {
	Select(ctx context.Context, v View) (Selection, error)
}

// Persister stores the finished point list.
type Persister interface {
	Save(name string, points []models.Point) error
}

// Config holds the per-session settings. All of them are fixed once the
// session starts.
type Config struct {
	// Step is the distance between visited slices.
	Step int

	// Workers is the number of background prefetch workers.
	Workers int

	// Axis is the traversal axis (0, 1 or 2).
	Axis int

	// Window restricts each slice to a sub-rectangle; the offsets are added
	// back to recorded points.
	Window models.Window

	// SerializeFetches forbids overlapping volume reads.
	SerializeFetches bool

	// Name labels the persisted output.
	Name string

	Logger *slog.Logger
}

// State is a step of the session state machine.
type State int

const (
	Idle State = iota
	Traversing
	AwaitingClick
	Advancing
	Draining
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Traversing:
		return "traversing"
	case AwaitingClick:
		return "awaiting-click"
	case Advancing:
		return "advancing"
	case Draining:
		return "draining"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session drives one pass over the volume. It is not safe for concurrent
// use; only the prefetch workers it owns run in the background.
type Session struct {
	cfg       Config
	renderer  Renderer
	persister Persister
	logger    *slog.Logger

	coord *prefetch.Coordinator
	queue *prefetch.Queue
	pool  *prefetch.Pool

	axisLength int
	state      State
	current    int
	visited    []int
	points     []models.Point
}

// NewSession validates cfg against the source and prepares the cache and
// worker pool. persister may be nil, in which case points are only returned.
func NewSession(source volume.Source, renderer Renderer, persister Persister, cfg Config) (*Session, error) {
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", cfg.Step)
	}
	if cfg.Axis < 0 || cfg.Axis > 2 {
		return nil, fmt.Errorf("axis must be 0, 1 or 2, got %d", cfg.Axis)
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if !source.Shape().Valid() {
		return nil, fmt.Errorf("volume has empty shape %v", source.Shape())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	coord, err := prefetch.NewCoordinator(source, prefetch.Options{
		Axis:      cfg.Axis,
		Window:    cfg.Window,
		Serialize: cfg.SerializeFetches,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	q := prefetch.NewQueue()

	return &Session{
		cfg:        cfg,
		renderer:   renderer,
		persister:  persister,
		logger:     logger,
		coord:      coord,
		queue:      q,
		pool:       prefetch.NewPool(coord, q, prefetch.PoolOptions{Workers: cfg.Workers, Logger: logger}),
		axisLength: source.Shape()[cfg.Axis] - 1,
	}, nil
}

// AxisLength returns the last valid index on the traversal axis.
func (s *Session) AxisLength() int {
	return s.axisLength
}

// State returns where the session is in its lifecycle.
func (s *Session) State() State {
	return s.state
}

// Visited returns the slice indices shown so far, in order.
func (s *Session) Visited() []int {
	return append([]int(nil), s.visited...)
}

// Points returns the points recorded so far, in visit order.
func (s *Session) Points() []models.Point {
	return append([]models.Point(nil), s.points...)
}

// Stats exposes the cache counters, mainly for logging at the end of a run.
func (s *Session) Stats() prefetch.Stats {
	return s.coord.Stats()
}

// Run visits every slice of the traversal, asking the renderer for one point
// per slice, then stops the prefetch workers and persists the points.
//
// A failed foreground fetch or an operator abort ends the walk early; the
// points collected until then are persisted and returned with the error.
func (s *Session) Run(ctx context.Context) ([]models.Point, error) {
	if s.state != Idle {
		return nil, fmt.Errorf("session already %s", s.state)
	}

	seq := &sequence{indices: Traversal(s.axisLength, s.cfg.Step)}
	s.logger.Info("session started",
		"axis", s.cfg.Axis, "axis_length", s.axisLength, "step", s.cfg.Step,
		"slices", len(seq.indices), "workers", s.pool.Workers())

	s.pool.Start(ctx)
	for _, z := range seq.indices[1:] {
		s.pool.Prefetch(prefetch.PriorityBackground, z)
	}

	runErr := s.walk(ctx, seq)

	s.transition(Draining)
	if dropped := s.pool.Shutdown(); dropped > 0 {
		s.logger.Debug("dropped pending prefetch requests", "count", dropped)
	}
	st := s.coord.Stats()
	s.logger.Info("prefetch summary", "cached", s.coord.Cached(), "hits", st.Hits, "misses", st.Misses, "failures", st.Failures)

	if s.persister != nil && (runErr == nil || len(s.points) > 0) {
		if err := s.persister.Save(s.cfg.Name, s.Points()); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("persist points: %w", err))
		}
	}

	if runErr != nil {
		s.transition(Aborted)
		return s.Points(), runErr
	}
	s.transition(Done)
	return s.Points(), nil
}

func (s *Session) walk(ctx context.Context, seq *sequence) error {
	rows, cols := s.coord.Window()
	for {
		z, err := seq.next()
		if errors.Is(err, errSequenceExhausted) {
			return nil
		}
		s.current = z
		s.transition(Traversing)

		// The slice after this one should be ready before the rest of the
		// background queue.
		if next, ok := seq.peek(); ok {
			s.pool.Prefetch(prefetch.PriorityNext, next)
		}

		slice, err := s.coord.GetOrFetch(ctx, z)
		if err != nil {
			return err
		}
		s.visited = append(s.visited, z)

		s.transition(AwaitingClick)
		sel, err := s.renderer.Select(ctx, View{
			Index:      z,
			AxisLength: s.axisLength,
			Slice:      slice,
			Title:      fmt.Sprintf("Slice %d/%d. Select the umbilicus point.", z, s.axisLength),
		})
		if err != nil {
			return err
		}
		if sel.OK {
			p := models.Point{Z: z, Y: sel.Y + rows.Start, X: sel.X + cols.Start}
			s.points = append(s.points, p)
			s.logger.Info("point added", "z", p.Z, "y", p.Y, "x", p.X)
		} else {
			s.logger.Info("slice skipped", "z", z)
		}

		s.transition(Advancing)
	}
}

func (s *Session) transition(to State) {
	s.logger.Debug("session state", "from", s.state, "to", to, "z", s.current)
	s.state = to
}
