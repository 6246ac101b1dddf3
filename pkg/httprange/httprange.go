// Package httprange parses single HTTP byte-range requests (RFC 7233).
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotSatisfiable is returned for malformed or out-of-bounds ranges.
// Callers respond with 416 and "Content-Range: bytes */<size>".
var ErrNotSatisfiable = errors.New("requested range not satisfiable")

// Range is an inclusive byte range within a resource of known size.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Parse parses a Range header value against a resource of the given size.
// Only a single range is supported; multi-range requests use the first spec.
// Either bound may be omitted: "bytes=a-" reads to the end, "bytes=-n" reads
// the final n bytes. An end past the resource is clamped to size-1.
func Parse(header string, size int64) (Range, error) {
	if size <= 0 {
		return Range{}, ErrNotSatisfiable
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, ErrNotSatisfiable
	}

	spec := strings.TrimPrefix(header, prefix)
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return Range{}, ErrNotSatisfiable
	}

	// Suffix form: last n bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, ErrNotSatisfiable
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, ErrNotSatisfiable
	}
	if start >= size {
		return Range{}, ErrNotSatisfiable
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, ErrNotSatisfiable
		}
		if end >= size {
			end = size - 1
		}
	}

	if start > end {
		return Range{}, ErrNotSatisfiable
	}

	return Range{Start: start, End: end}, nil
}

// Unsatisfiable formats the Content-Range header value for a 416 response.
func Unsatisfiable(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}
