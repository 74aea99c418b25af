package stow

import (
	"maps"
	"sync"
	"sync/atomic"
)

// FileStatus is the write state of one queued entry.
type FileStatus uint8

// File statuses.
const (
	StatusNotStarted FileStatus = iota
	StatusWriting
	StatusFinished
	StatusErrored
)

// String returns the string representation of the status.
func (s FileStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusWriting:
		return "writing"
	case StatusFinished:
		return "finished"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// StatusEvent reports a status change of one entry.
type StatusEvent struct {
	// Path is the archive name of the entry.
	Path   string
	Status FileStatus

	// Err is set when Status is StatusErrored.
	Err error

	// BytesLeft is the number of queued content bytes not yet written,
	// across the whole job.
	BytesLeft int64
}

// StatusFunc receives status changes.
// Implementations must be safe for concurrent calls.
type StatusFunc func(StatusEvent)

// Status tracks per-entry write status for one creation job. It is shared
// by the index worker and all archive workers and is safe for concurrent
// use. A nil *Status ignores all updates.
type Status struct {
	mu        sync.Mutex
	files     map[string]FileStatus
	errs      map[string]error
	bytesLeft atomic.Int64
	fn        StatusFunc
}

// NewStatus returns an empty tracker that forwards changes to fn, which
// may be nil.
func NewStatus(fn StatusFunc) *Status {
	return &Status{
		files: make(map[string]FileStatus),
		errs:  make(map[string]error),
		fn:    fn,
	}
}

// queued registers an entry as not started and adds its size to the gauge.
func (s *Status) queued(m Metadata) {
	if s == nil {
		return
	}
	s.bytesLeft.Add(m.Size)
	s.set(m.Path, StatusNotStarted, nil)
}

// set records a status change and notifies the callback.
func (s *Status) set(path string, st FileStatus, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.files[path] = st
	if err != nil {
		s.errs[path] = err
	} else {
		delete(s.errs, path)
	}
	s.mu.Unlock()

	if s.fn != nil {
		s.fn(StatusEvent{Path: path, Status: st, Err: err, BytesLeft: s.bytesLeft.Load()})
	}
}

// wrote subtracts n content bytes from the gauge.
func (s *Status) wrote(n int64) {
	if s == nil || n == 0 {
		return
	}
	s.bytesLeft.Add(-n)
}

// BytesLeft returns the number of queued content bytes not yet written.
func (s *Status) BytesLeft() int64 {
	if s == nil {
		return 0
	}
	return s.bytesLeft.Load()
}

// Get returns the status of path and whether it is known.
func (s *Status) Get(path string) (FileStatus, bool) {
	if s == nil {
		return StatusNotStarted, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.files[path]
	return st, ok
}

// Snapshot returns a copy of all statuses.
func (s *Status) Snapshot() map[string]FileStatus {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.files)
}

// Errors returns a copy of the errors of all errored entries.
func (s *Status) Errors() map[string]error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.errs)
}
