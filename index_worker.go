package stow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// IndexWorker walks input paths and queues one Metadata per regular file
// and per empty folder. Non-empty folders are not queued themselves;
// their children are.
type IndexWorker struct {
	inputs []string
	status *Status
	logger *slog.Logger

	queued atomic.Int64
}

// NewIndexWorker returns a worker for the given input files and folders.
func NewIndexWorker(inputs []string, status *Status, logger *slog.Logger) *IndexWorker {
	return &IndexWorker{inputs: inputs, status: status, logger: logger}
}

// log returns the logger, falling back to a discard logger if nil.
func (w *IndexWorker) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Queued returns the number of entries sent so far.
func (w *IndexWorker) Queued() int64 {
	return w.queued.Load()
}

// Run walks every input depth-first and sends entries to out. It blocks
// while out is full, so the number of queued but unwritten entries never
// exceeds the channel capacity plus the send in progress.
//
// Run does not close out. It returns ctx.Err() when cancelled and the
// error of an input that cannot be read at all; unreadable entries below
// an input are logged and skipped.
func (w *IndexWorker) Run(ctx context.Context, out chan<- Metadata) error {
	for _, input := range w.inputs {
		if err := w.walk(ctx, input, out); err != nil {
			return err
		}
	}
	w.log().Debug("index complete", "queued", w.Queued())
	return nil
}

func (w *IndexWorker) walk(ctx context.Context, input string, out chan<- Metadata) error {
	input, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("index %s: %w", input, err)
	}
	info, err := os.Lstat(input)
	if err != nil {
		return fmt.Errorf("index %s: %w", input, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("index %s: %w", input, ErrSymlink)
	}
	base := filepath.Dir(input)

	return filepath.WalkDir(input, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == input {
				return walkErr
			}
			w.log().Warn("skipped unreadable entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			w.log().Debug("skipped symlink", "path", path)
			return nil
		case d.IsDir():
			empty, err := isEmptyDir(path)
			if err != nil {
				w.log().Warn("skipped unreadable folder", "path", path, "error", err)
				return fs.SkipDir
			}
			if !empty {
				return nil
			}
		case !d.Type().IsRegular():
			w.log().Debug("skipped special file", "path", path)
			return nil
		}

		name, err := archiveName(base, path)
		if err != nil {
			// Without an archive name the entry is tracked by its source path.
			w.fail(path, err)
			return nil
		}
		m, err := w.metadata(path, name, d)
		if err != nil {
			w.fail(name, err)
			return nil
		}
		return w.send(ctx, out, m)
	})
}

func (w *IndexWorker) metadata(path, name string, d fs.DirEntry) (Metadata, error) {
	info, err := d.Info()
	if err != nil {
		return Metadata{}, err
	}
	return metadataFromInfo(path, name, info)
}

// fail records an entry that cannot be queued as errored.
func (w *IndexWorker) fail(key string, err error) {
	w.log().Warn("cannot index entry", "path", key, "error", err)
	w.status.set(key, StatusErrored, err)
}

func (w *IndexWorker) send(ctx context.Context, out chan<- Metadata, m Metadata) error {
	// Register before sending so a fast worker cannot report progress
	// for an entry the tracker does not know yet.
	w.status.queued(m)
	select {
	case out <- m:
		w.queued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
