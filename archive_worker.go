package stow

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ArchiveWorker drains a queue of Metadata into its own Loader.
type ArchiveWorker struct {
	id     int
	loader *Loader
	logger *slog.Logger

	idle    atomic.Bool
	written atomic.Int64
	failed  atomic.Int64
}

// NewArchiveWorker returns a worker that writes through loader.
func NewArchiveWorker(id int, loader *Loader, logger *slog.Logger) *ArchiveWorker {
	w := &ArchiveWorker{id: id, loader: loader, logger: logger}
	w.idle.Store(true)
	return w
}

// log returns the logger, falling back to a discard logger if nil.
func (w *ArchiveWorker) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Idle reports whether the worker is waiting for work.
func (w *ArchiveWorker) Idle() bool {
	return w.idle.Load()
}

// Loader returns the worker's loader.
func (w *ArchiveWorker) Loader() *Loader {
	return w.loader
}

// Written returns the number of entries written successfully.
func (w *ArchiveWorker) Written() int64 {
	return w.written.Load()
}

// Failed returns the number of entries that failed.
func (w *ArchiveWorker) Failed() int64 {
	return w.failed.Load()
}

// Run writes entries from in until in is closed or ctx is cancelled, then
// closes the loader. A failed entry is logged and does not stop the
// worker. An entry in progress is always finished before ctx is checked.
//
// The returned error is the loader's Close error, if any.
func (w *ArchiveWorker) Run(ctx context.Context, in <-chan Metadata) error {
	defer w.idle.Store(true)

	for {
		select {
		case <-ctx.Done():
			w.log().Debug("worker stopped", "worker", w.id)
			return w.loader.Close()
		case m, ok := <-in:
			if !ok {
				return w.loader.Close()
			}
			w.idle.Store(false)
			w.write(m)
			w.idle.Store(true)
		}
	}
}

func (w *ArchiveWorker) write(m Metadata) {
	if err := w.loader.WriteFile(m); err != nil {
		w.failed.Add(1)
		w.log().Warn("failed to archive entry", "worker", w.id, "path", m.Path, "error", err)
		return
	}
	w.written.Add(1)
}
