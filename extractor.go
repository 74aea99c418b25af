package stow

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/meigma/stow/codec"
	"github.com/meigma/stow/internal/sink"
	"github.com/meigma/stow/internal/wire"
)

// Extractor recovers files from containers written by Create.
//
// Every extraction call uses a fresh Manager, so chain lookups and the
// set of explored containers never leak from one call into the next.
// An Extractor is safe for concurrent use; each call is single-threaded.
type Extractor struct {
	cfg   extractConfig
	codec codec.Codec
	namer wire.Namer
}

// NewExtractor returns an Extractor configured by opts.
func NewExtractor(opts ...ExtractOption) (*Extractor, error) {
	cfg := defaultExtractConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = codec.NewRegistry()
	}
	c, err := cfg.registry.New(cfg.codec, codec.Config{KeyHash: cfg.keyHash})
	if err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:   cfg,
		codec: c,
		namer: wire.NewNamer(cfg.keyHash, c.Ext()),
	}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (e *Extractor) log() *slog.Logger {
	if e.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.cfg.logger
}

// Codec returns the codec containers are read with.
func (e *Extractor) Codec() codec.Codec {
	return e.codec
}

// newExtraction prepares the state for one call that reads containers
// below srcDir and writes to outDir.
func (e *Extractor) newExtraction(ctx context.Context, srcDir, outDir string) (*extraction, error) {
	s, err := sink.New(outDir,
		sink.WithOverwrite(e.cfg.overwrite),
		sink.WithPreserveMode(e.cfg.preserveMode),
		sink.WithPreserveTimes(e.cfg.preserveTimes),
	)
	if err != nil {
		return nil, err
	}
	m := NewManager(e.codec, e.cfg.keyHash, e.cfg.prompt, e.cfg.logger)
	if cleanPath(outDir) != cleanPath(srcDir) {
		m.Exclude(outDir)
	}
	if e.cfg.index {
		if err := m.Index(ctx, srcDir); err != nil {
			return nil, err
		}
	}
	return &extraction{
		codec:   e.codec,
		namer:   e.namer,
		manager: m,
		sink:    s,
		logger:  e.cfg.logger,
	}, nil
}

// ExtractFile extracts every entry that starts in the container at path
// into outDir, following fragment chains into other containers as needed.
//
// Failures of single entries are reported in the ExtractReport. An error
// is returned only if the container cannot be opened or outDir cannot be
// created.
func (e *Extractor) ExtractFile(ctx context.Context, path, outDir string) (*ExtractReport, error) {
	x, err := e.newExtraction(ctx, filepath.Dir(path), outDir)
	if err != nil {
		return nil, err
	}
	e.log().Info("extracting container", "path", path, "out", outDir)
	report, err := x.extractAll(ctx, path)
	if report != nil {
		report.Explored = x.manager.ExploredPaths()
	}
	return report, err
}

// ExtractFolder extracts every container found below dir into outDir.
//
// Folders are scanned breadth-first. Within a folder, containers are
// visited in the order of the sequence number in their names, so chains
// are usually entered at their first fragment. Containers already read
// to the end while following a chain are not read again, and files that
// are not containers are listed in ExtractReport.Ignored.
func (e *Extractor) ExtractFolder(ctx context.Context, dir, outDir string) (*ExtractReport, error) {
	x, err := e.newExtraction(ctx, dir, outDir)
	if err != nil {
		return nil, err
	}
	e.log().Info("extracting folder", "dir", dir, "out", outDir)

	report := &ExtractReport{}
	err = walkContainers(ctx, dir, outDir, func(path string) error {
		if x.manager.Explored(path) {
			return nil
		}
		r, err := x.extractAll(ctx, path)
		if r != nil {
			report.merge(r)
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			e.log().Debug("ignored file", "path", path, "error", err)
			report.Ignored = append(report.Ignored, path)
			return nil
		}
	})
	report.Explored = x.manager.ExploredPaths()
	e.log().Info("extraction complete",
		"files", len(report.Files),
		"failed", len(report.Failed()),
		"ignored", len(report.Ignored),
	)
	return report, err
}

// ExtractIndex extracts the record at position index of the container at
// path, as listed by View. A continuation record cannot be extracted on
// its own and yields ErrNotFirstFragment.
func (e *Extractor) ExtractIndex(ctx context.Context, path string, index int, outDir string) (*FileResult, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	x, err := e.newExtraction(ctx, filepath.Dir(path), outDir)
	if err != nil {
		return nil, err
	}
	cr, err := openContainer(e.codec, path)
	if err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		h, stored, err := cr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %d, container holds %d records", ErrIndexOutOfRange, index, i)
			}
			return nil, err
		}
		if i < index {
			if err := cr.skip(stored); err != nil {
				return nil, err
			}
			continue
		}
		if h.Fragment > 1 {
			return nil, fmt.Errorf("%w: %s is fragment %d", ErrNotFirstFragment, h.Name, h.Fragment)
		}
		res, _ := x.extractRecord(ctx, cr, h, stored)
		return &res, res.Err
	}
}

// walkContainers calls fn for every regular file below dir, breadth-first,
// ordering each folder's files by container sequence number. skipDir and
// everything below it is not visited.
func walkContainers(ctx context.Context, dir, skipDir string, fn func(path string) error) error {
	root := cleanPath(dir)
	var skip string
	if skipDir != "" {
		skip = cleanPath(skipDir)
	}
	queue := []string{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(d)
		if err != nil {
			if d == root {
				return err
			}
			continue
		}
		var files []string
		for _, entry := range entries {
			path := filepath.Join(d, entry.Name())
			switch {
			case entry.IsDir():
				if skip == "" || path != skip {
					queue = append(queue, path)
				}
			case entry.Type().IsRegular():
				files = append(files, path)
			}
		}
		sortBySequence(files)
		for _, f := range files {
			if err := fn(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortBySequence orders container paths by the sequence number in their
// names. Names without one sort last; ties are broken by name.
func sortBySequence(paths []string) {
	type key struct {
		seq uint32
		ok  bool
	}
	keys := make(map[string]key, len(paths))
	for _, p := range paths {
		seq, ok := wire.ParseSequence(p)
		keys[p] = key{seq, ok}
	}
	slices.SortStableFunc(paths, func(a, b string) int {
		ka, kb := keys[a], keys[b]
		if ka.ok != kb.ok {
			if ka.ok {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(ka.seq, kb.seq); c != 0 {
			return c
		}
		return cmp.Compare(filepath.Base(a), filepath.Base(b))
	})
}
