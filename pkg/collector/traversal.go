package collector

import "errors"

// errSequenceExhausted ends the traversal loop once the last index is served.
var errSequenceExhausted = errors.New("traversal sequence exhausted")

// Traversal returns the slice indices visited along an axis whose last valid
// index is axisLength: 0, step, 2*step, ... with the final entry clamped to
// axisLength. axisLength is always visited exactly once, even when step does
// not divide it.
func Traversal(axisLength, step int) []int {
	if axisLength < 0 || step <= 0 {
		return nil
	}
	var seq []int
	for z := 0; ; z += step {
		if z >= axisLength {
			seq = append(seq, axisLength)
			return seq
		}
		seq = append(seq, z)
	}
}

// sequence hands out a precomputed traversal one index at a time.
type sequence struct {
	indices []int
	pos     int
}

func (s *sequence) next() (int, error) {
	if s.pos >= len(s.indices) {
		return 0, errSequenceExhausted
	}
	z := s.indices[s.pos]
	s.pos++
	return z, nil
}

// peek returns the index next() will return, without consuming it.
func (s *sequence) peek() (int, bool) {
	if s.pos >= len(s.indices) {
		return 0, false
	}
	return s.indices[s.pos], true
}
