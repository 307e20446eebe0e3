package prefetch

import (
	"errors"
	"fmt"
)

// ErrMalformedSlice is the cause recorded when a source returns no data or
// data whose dimensions do not match the session window.
var ErrMalformedSlice = errors.New("malformed slice")

// FetchError reports that reading slice Index from the volume failed.
// Nothing is cached for Index, so a later request retries the read.
type FetchError struct {
	Index int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch slice %d: %v", e.Index, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
