package stow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/stow/codec"
)

// Job runs one archive creation: one IndexWorker feeding N ArchiveWorkers
// through a bounded queue. Each worker owns its own Loader, so workers
// share no container state.
type Job struct {
	cfg     createConfig
	outDir  string
	queue   chan Metadata
	index   *IndexWorker
	workers []*ArchiveWorker
	status  *Status

	mu     sync.Mutex
	cancel context.CancelFunc
	ran    bool
}

// NewJob prepares a job that archives inputs into outDir. It creates
// outDir and one codec instance and loader per worker; nothing is read
// or written until Run.
func NewJob(inputs []string, outDir string, opts ...CreateOption) (*Job, error) {
	cfg := defaultCreateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = codec.NewRegistry()
	}
	if len(inputs) == 0 {
		return nil, errors.New("stow: no inputs")
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outDir, err)
	}

	j := &Job{
		cfg:    cfg,
		outDir: outDir,
		queue:  make(chan Metadata, cfg.queueSize),
		status: NewStatus(cfg.status),
	}
	j.index = NewIndexWorker(inputs, j.status, cfg.logger)

	for i := range cfg.workers {
		c, err := cfg.registry.New(cfg.codec, codec.Config{KeyHash: cfg.keyHash, Capacity: cfg.capacity})
		if err != nil {
			return nil, err
		}
		loader, err := NewLoader(c, cfg.keyHash, outDir,
			WithLoaderLogger(cfg.logger),
			WithLoaderStatus(j.status),
		)
		if err != nil {
			return nil, err
		}
		var logger *slog.Logger
		if cfg.logger != nil {
			logger = cfg.logger.With("stream", fmt.Sprintf("%016x", loader.Stream()))
		}
		j.workers = append(j.workers, NewArchiveWorker(i, loader, logger))
	}
	return j, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (j *Job) log() *slog.Logger {
	if j.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.cfg.logger
}

// Status returns the job's status tracker.
func (j *Job) Status() *Status {
	return j.status
}

// IndexWorker returns the job's producer.
func (j *Job) IndexWorker() *IndexWorker {
	return j.index
}

// Workers returns the job's archive workers.
func (j *Job) Workers() []*ArchiveWorker {
	return j.workers
}

// Drained reports whether the queue is empty and every worker is idle.
// It can be true transiently while the index worker is still walking.
func (j *Job) Drained() bool {
	if len(j.queue) > 0 {
		return false
	}
	for _, w := range j.workers {
		if !w.Idle() {
			return false
		}
	}
	return true
}

// Stop asks a running job to finish. The index worker stops walking and
// each archive worker finishes its current entry, then closes its loader.
// Entries still queued are not written. Run returns once all of that is done.
func (j *Job) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// Run executes the job and returns its report. It returns only after
// every loader has been closed.
//
// Per-entry failures are recorded in the report and do not fail the job.
// The returned error is set when an input cannot be read at all, a loader
// fails to save its last container, or ctx is cancelled.
func (j *Job) Run(ctx context.Context) (*CreateReport, error) {
	j.mu.Lock()
	if j.ran {
		j.mu.Unlock()
		return nil, errors.New("stow: job already ran")
	}
	j.ran = true
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.mu.Unlock()
	defer cancel()

	j.log().Info("creating archive", "out", j.outDir, "codec", j.cfg.codec, "workers", len(j.workers), "capacity", j.cfg.capacity)

	// The producer may fail; workers keep draining what was queued, so
	// they run on a context of their own and stop only on cancellation.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(j.queue)
		return j.index.Run(gctx, j.queue)
	})
	for _, w := range j.workers {
		g.Go(func() error {
			return w.Run(ctx, j.queue)
		})
	}
	err := g.Wait()

	report := j.report()
	j.log().Info("archive created",
		"containers", len(report.Containers),
		"written", report.Written,
		"failed", len(report.Failed),
	)
	return report, err
}

func (j *Job) report() *CreateReport {
	r := &CreateReport{
		Statuses: j.status.Snapshot(),
		Failed:   j.status.Errors(),
	}
	for _, w := range j.workers {
		r.Containers = append(r.Containers, w.Loader().Containers()...)
		r.Written += int(w.Written())
	}
	return r
}
