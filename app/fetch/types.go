package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrRangeNotSatisfiable is returned when the server answers 416, which
// for a feed cursor means the requested start lies past the document end.
var ErrRangeNotSatisfiable = errors.New("range not satisfiable")

var ErrInvalidRange = errors.New("invalid byte range")

// StatusError reports any other non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// ByteRange is an inclusive pair of offsets into a remote document,
// rendered verbatim into a Range header.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Len is the number of bytes the range asks for.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) Validate() error {
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("%w: negative offset in %d-%d", ErrInvalidRange, r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// RangeFetcher returns the bytes of url within r. The caller closes the
// returned body.
type RangeFetcher interface {
	Fetch(ctx context.Context, url string, r ByteRange) (io.ReadCloser, error)
}
