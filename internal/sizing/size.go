// Package sizing provides safe size arithmetic for stream positions.
package sizing

import (
	"io"
	"math"
)

// Clamp returns the number of bytes of a pending span of remaining bytes
// that fit into a buffer of bufLen bytes.
func Clamp(remaining int64, bufLen int) int {
	if remaining <= 0 || bufLen <= 0 {
		return 0
	}
	if remaining < int64(bufLen) {
		return int(remaining)
	}
	return bufLen
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
