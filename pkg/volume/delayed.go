package volume

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
)

// Delayed adds a fixed latency to every slice read of the wrapped Source,
// approximating a remote volume store.
type Delayed struct {
	Source
	Latency time.Duration
}

// ReadSlice implements Source.
func (d Delayed) ReadSlice(axis, index int, rows, cols models.Span) (*mat.Dense, error) {
	time.Sleep(d.Latency)
	return d.Source.ReadSlice(axis, index, rows, cols)
}
