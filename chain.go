package stow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/stow/codec"
	"github.com/meigma/stow/internal/sink"
	"github.com/meigma/stow/internal/wire"
)

// containerReader walks the records of one loaded container.
type containerReader struct {
	path    string
	id      wire.ArchiveID
	version byte
	c       codec.Container
	records int
}

// openContainer loads path, reads its ArchiveID, keys the rest of the
// stream with it and checks the format version.
func openContainer(c codec.Codec, path string) (*containerReader, error) {
	ct, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	id, err := wire.ReadID(ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: archive id: %v", ErrArchiveIO, path, err)
	}
	if err := ct.Secure(id.Bytes()); err != nil {
		return nil, fmt.Errorf("secure %s: %w", path, err)
	}
	var v [1]byte
	if _, err := io.ReadFull(ct, v[:]); err != nil {
		return nil, fmt.Errorf("%w: %s: version: %v", ErrArchiveIO, path, err)
	}
	if v[0] != wire.Version {
		return nil, fmt.Errorf("%w: %s: version %d", ErrUnsupportedVersion, path, v[0])
	}
	return &containerReader{path: path, id: id, version: v[0], c: ct}, nil
}

// next reads the next record header and returns it with the number of
// content bytes the record holds in this container.
//
// It returns io.EOF at the end marker or when no complete header is
// left, and ErrArchiveIO when the header is inconsistent. Either way
// there are no more records to read.
func (r *containerReader) next() (h wire.Header, stored int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			h, stored, err = wire.Header{}, 0, fmt.Errorf("%w: %s: %v", ErrArchiveIO, r.path, p)
		}
	}()

	h, err = wire.ReadHeader(r.c)
	switch {
	case err == nil:
	case errors.Is(err, wire.ErrEndOfRecords), errors.Is(err, wire.ErrTruncated):
		return wire.Header{}, 0, io.EOF
	default:
		return wire.Header{}, 0, fmt.Errorf("%w: %s: record %d: %v", ErrArchiveIO, r.path, r.records, err)
	}
	r.records++
	if h.Type == wire.EntryFile {
		stored = min(h.Remaining, r.c.Remaining())
	}
	return h, stored, nil
}

// skip discards n content bytes.
func (r *containerReader) skip(n int64) error {
	skipped, err := r.c.Skip(n)
	if err != nil {
		return err
	}
	if skipped != n {
		return fmt.Errorf("%w: %s: skipped %d of %d bytes", ErrArchiveIO, r.path, skipped, n)
	}
	return nil
}

// copyTo copies n content bytes to w.
func (r *containerReader) copyTo(w io.Writer, n int64) error {
	copied, err := io.CopyN(w, r.c, n)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if copied != n {
		return fmt.Errorf("%w: %s: read %d of %d bytes", ErrArchiveIO, r.path, copied, n)
	}
	return nil
}

// drained reports whether no record follows the current position.
// It consumes the next header if there is one.
func (r *containerReader) drained() bool {
	_, _, err := r.next()
	return err != nil
}

// extraction holds the state of one extraction call.
type extraction struct {
	codec   codec.Codec
	namer   wire.Namer
	manager *Manager
	sink    *sink.FileSink
	logger  *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (x *extraction) log() *slog.Logger {
	if x.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.logger
}

// extractAll extracts every entry that starts in the container at path.
// Continuation records are skipped; their files are extracted from the
// container holding their first fragment.
func (x *extraction) extractAll(ctx context.Context, path string) (*ExtractReport, error) {
	cr, err := openContainer(x.codec, path)
	if err != nil {
		return nil, err
	}
	x.log().Debug("extracting container", "path", path, "id", cr.id.String())

	report := &ExtractReport{}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		h, stored, err := cr.next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				x.log().Warn("stopped reading container", "path", path, "error", err)
			}
			break
		}
		if h.Fragment > 1 {
			if err := cr.skip(stored); err != nil {
				x.log().Warn("stopped reading container", "path", path, "error", err)
				break
			}
			continue
		}
		res, ok := x.extractRecord(ctx, cr, h, stored)
		report.Files = append(report.Files, res)
		if !ok {
			break
		}
	}
	x.manager.MarkExplored(path)
	return report, nil
}

// extractRecord extracts the entry whose first record was just read from
// cr. It returns false when cr cannot be read any further.
func (x *extraction) extractRecord(ctx context.Context, cr *containerReader, h wire.Header, stored int64) (FileResult, bool) {
	if h.Type == wire.EntryFolder {
		res := FileResult{Name: h.Name, Type: EntryFolder, Containers: []string{cr.path}}
		if err := x.sink.Mkdir(&sink.Entry{Path: h.Name}); err != nil {
			res.Err = err
			x.log().Warn("failed to create folder", "name", h.Name, "error", err)
		}
		return res, true
	}
	return x.extractFile(ctx, cr, h, stored)
}

// extractFile copies a file's content from cr and then from every later
// container of its chain, one container at a time.
func (x *extraction) extractFile(ctx context.Context, cr *containerReader, h wire.Header, stored int64) (FileResult, bool) {
	res := FileResult{Name: h.Name, Type: EntryFile, Containers: []string{cr.path}}
	entry := &sink.Entry{Path: h.Name, Mode: h.Permissions, ModTime: h.Modified}

	// A name that cannot be written below outDir fails the file, but its
	// chain is still consumed so later records stay reachable.
	var invalid error
	var w sink.Committer
	switch {
	case !fs.ValidPath(h.Name) || h.Name == ".":
		invalid = &fs.PathError{Op: "extract", Path: h.Name, Err: fs.ErrInvalid}
		w = sink.Discarding()
	case x.sink.ShouldProcess(entry):
		var err error
		if w, err = x.sink.Writer(entry); err != nil {
			res.Err = err
			x.log().Warn("failed to extract file", "name", h.Name, "error", err)
			return res, cr.skip(stored) == nil
		}
	default:
		res.Skipped = true
		w = sink.Discarding()
	}

	dg := digest.Canonical.Digester()
	out := io.MultiWriter(w, dg.Hash())

	cur, fragment, remaining := cr, h.Fragment, h.Remaining
	for {
		if err := cur.copyTo(out, stored); err != nil {
			_ = w.Discard() //nolint:errcheck // already failing
			res.Err = fmt.Errorf("extract %s: %w", h.Name, err)
			x.log().Warn("failed to extract file", "name", h.Name, "error", err)
			// A short copy means cr itself ran out of bytes.
			return res, cur != cr
		}
		res.Size += stored
		remaining -= stored
		if remaining == 0 {
			break
		}

		next, nextStored, err := x.follow(ctx, cur, h.Name, fragment, remaining)
		if cur != cr {
			// A fragment that does not end its file fills its container.
			x.manager.MarkExplored(cur.path)
		}
		if err != nil {
			_ = w.Discard() //nolint:errcheck // already failing
			res.Err = fmt.Errorf("extract %s: %w", h.Name, err)
			x.log().Warn("failed to extract file", "name", h.Name, "error", err)
			return res, true
		}
		cur, fragment, stored = next, fragment+1, nextStored
		res.Containers = append(res.Containers, cur.path)
	}

	if cur != cr && cur.drained() {
		x.manager.MarkExplored(cur.path)
	}
	if invalid != nil {
		res.Err, res.Size = invalid, 0
		x.log().Warn("failed to extract file", "name", h.Name, "error", invalid)
		return res, true
	}
	if err := w.Commit(); err != nil {
		res.Err = fmt.Errorf("extract %s: %w", h.Name, err)
		res.Size = 0
		return res, true
	}
	if !res.Skipped {
		res.Digest = dg.Digest()
		x.log().Debug("extracted file", "name", h.Name, "size", res.Size, "fragments", fragment)
	}
	return res, true
}

// follow opens the container after cur in the stream and checks that its
// first record continues the file name at the given fragment.
func (x *extraction) follow(ctx context.Context, cur *containerReader, name string, fragment, remaining int64) (*containerReader, int64, error) {
	nextID := cur.id.Next()
	nextName := x.namer.Name(nextID)

	path, err := x.manager.Locate(ctx, nextName, filepath.Dir(cur.path))
	if err != nil {
		return nil, 0, fmt.Errorf("fragment %d: %w", fragment+1, err)
	}
	next, err := openContainer(x.codec, path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrBrokenChain, path, err)
	}
	if next.id != nextID {
		return nil, 0, fmt.Errorf("%w: %s holds %s, want %s", ErrBrokenChain, path, next.id, nextID)
	}
	h, stored, err := next.next()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: no continuation record: %v", ErrBrokenChain, path, err)
	}
	if h.Type != wire.EntryFile || h.Fragment != fragment+1 || h.Name != name || h.Remaining != remaining {
		return nil, 0, fmt.Errorf("%w: %s starts with fragment %d of %q, want fragment %d of %q",
			ErrBrokenChain, path, h.Fragment, h.Name, fragment+1, name)
	}
	x.log().Debug("followed chain", "name", name, "fragment", h.Fragment, "path", path)
	return next, stored, nil
}
