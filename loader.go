package stow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/meigma/stow/codec"
	"github.com/meigma/stow/internal/platform"
	"github.com/meigma/stow/internal/sizing"
	"github.com/meigma/stow/internal/wire"
)

// Loader serializes entries into a stream of containers, rotating to a
// new container whenever the current one is full.
//
// Every Loader owns one stream: a random stream UUID chosen at
// construction and a sequence number that increments per container. A
// file that does not fit is split into fragments; each continuation
// fragment is the first record of the next container in the stream.
//
// A Loader is not safe for concurrent use.
type Loader struct {
	codec  codec.Codec
	namer  wire.Namer
	outDir string
	stream uint64
	next   uint32

	cur     codec.Container
	curID   wire.ArchiveID
	records int

	saved  []string
	buf    []byte
	hdr    []byte
	status *Status
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger for container writes.
// If not set, logging is disabled.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithLoaderStatus reports per-file status and written bytes to status.
func WithLoaderStatus(status *Status) LoaderOption {
	return func(l *Loader) {
		l.status = status
	}
}

// WithStreamID fixes the stream UUID instead of generating one.
func WithStreamID(stream uint64) LoaderOption {
	return func(l *Loader) {
		l.stream = stream
	}
}

// NewLoader returns a Loader that writes containers of c into outDir.
// keyHash must be the key hash c was configured with; it keys the
// container names.
func NewLoader(c codec.Codec, keyHash [codec.KeySize]byte, outDir string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		codec:  c,
		namer:  wire.NewNamer(keyHash, c.Ext()),
		outDir: outDir,
		buf:    make([]byte, 32*1024),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.stream == 0 {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("generate stream id: %w", err)
		}
		l.stream = binary.BigEndian.Uint64(id[:8])
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outDir, err)
	}
	return l, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// Stream returns the stream UUID of this loader.
func (l *Loader) Stream() uint64 {
	return l.stream
}

// Containers returns the paths of the containers saved so far.
func (l *Loader) Containers() []string {
	return append([]string(nil), l.saved...)
}

// WriteFile appends one entry to the stream.
//
// Files are written as one or more fragments; folders as a single header.
// A failure only affects this entry: the loader can keep writing the next
// one. Once started, a file is always written to the end or failed; there
// is no cancellation in the middle of a file.
func (l *Loader) WriteFile(m Metadata) (err error) {
	l.status.set(m.Path, StatusWriting, nil)
	var written int64
	defer func() {
		if m.Type == EntryFile {
			l.status.wrote(m.Size - written)
		}
		if err != nil {
			l.status.set(m.Path, StatusErrored, err)
			return
		}
		l.status.set(m.Path, StatusFinished, nil)
	}()

	if err := wire.ValidName(m.Path); err != nil {
		return fmt.Errorf("write %q: %w", m.Path, err)
	}
	if l.cur == nil {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	switch m.Type {
	case EntryFolder:
		h := wire.Header{Fragment: 1, Type: wire.EntryFolder, Name: m.Path}
		return l.writeHeader(&h)
	case EntryFile:
		written, err = l.writeContent(m)
		return err
	default:
		return fmt.Errorf("write %s: unknown entry type %s", m.Path, m.Type)
	}
}

// writeContent writes the fragments of one file and returns the number of
// content bytes written.
func (l *Loader) writeContent(m Metadata) (int64, error) {
	f, info, err := platform.OpenSource(m.Source)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return l.writeFragments(m, f, info.Size())
}

// writeFragments writes size bytes of src as one or more fragments of m.
func (l *Loader) writeFragments(m Metadata, src io.Reader, size int64) (int64, error) {
	remaining := size
	var written int64
	for fragment := int64(1); ; fragment++ {
		h := wire.Header{
			Fragment:    fragment,
			Type:        wire.EntryFile,
			Name:        m.Path,
			Created:     m.Created,
			Modified:    m.Modified,
			Permissions: m.Mode,
			Remaining:   remaining,
		}
		if err := l.writeHeader(&h); err != nil {
			return written, err
		}

		n, err := l.copyContent(src, remaining)
		written += n
		remaining -= n
		if err != nil {
			// The record claims bytes the container will never hold.
			// Close the container here so the next entry starts clean;
			// readers see this file's chain end at a mismatched link.
			l.abandon()
			return written, fmt.Errorf("write %s: %w", m.Path, err)
		}
		if remaining == 0 {
			l.log().Debug("wrote file", "path", m.Path, "fragments", fragment, "container", l.curID.String())
			return written, nil
		}

		if err := l.rotate(); err != nil {
			return written, err
		}
	}
}

// copyContent copies up to remaining bytes from src into the current
// container, stopping early when the container is full.
func (l *Loader) copyContent(src io.Reader, remaining int64) (int64, error) {
	var written int64
	for written < remaining {
		free := l.cur.Remaining()
		if free == 0 {
			break
		}
		k := sizing.Clamp(min(remaining-written, free), len(l.buf))
		if _, err := io.ReadFull(src, l.buf[:k]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return written, fmt.Errorf("source shrank during write: %w", err)
			}
			return written, err
		}
		n, err := l.cur.Write(l.buf[:k])
		written += int64(n)
		l.status.wrote(int64(n))
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// writeHeader writes one record header, rotating once if the current
// container cannot hold it.
//
// A file header with content is only written if at least one content byte
// fits after it, so every fragment carries data.
func (l *Loader) writeHeader(h *wire.Header) error {
	b, err := h.AppendBinary(l.hdr[:0])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveIO, h.Name, err)
	}
	l.hdr = b

	need := int64(len(b))
	if h.Type == wire.EntryFile && h.Remaining > 0 {
		need++
	}
	if l.cur.Remaining() < need {
		if l.records == 0 {
			// Already a fresh container; rotating cannot help.
			return fmt.Errorf("%w: %s needs %d bytes, capacity left %d", ErrContainerTooSmall, h.Name, need, l.cur.Remaining())
		}
		if err := l.rotate(); err != nil {
			return err
		}
		if l.cur.Remaining() < need {
			return fmt.Errorf("%w: %s needs %d bytes, capacity left %d", ErrContainerTooSmall, h.Name, need, l.cur.Remaining())
		}
	}

	if _, err := l.cur.Write(b); err != nil {
		return fmt.Errorf("write header %s: %w", h.Name, err)
	}
	l.records++
	return nil
}

// rotate saves the current container and opens the next one in the stream.
// A current container without records is kept as is.
func (l *Loader) rotate() error {
	if l.cur != nil {
		if l.records == 0 {
			return nil
		}
		if err := l.save(); err != nil {
			return err
		}
	}

	id := wire.ArchiveID{Stream: l.stream, Sequence: l.next}
	l.next++
	c := l.codec.NewContainer()
	idBytes := id.Bytes()
	if _, err := c.Write(idBytes); err != nil {
		return fmt.Errorf("%w: archive id: %v", ErrContainerTooSmall, err)
	}
	if err := c.Secure(idBytes); err != nil {
		return fmt.Errorf("secure container %s: %w", id, err)
	}
	if err := c.WriteByte(wire.Version); err != nil {
		return fmt.Errorf("%w: version: %v", ErrContainerTooSmall, err)
	}

	l.cur, l.curID, l.records = c, id, 0
	l.log().Debug("opened container", "id", id.String())
	return nil
}

// save persists the current container under its predicted name.
func (l *Loader) save() error {
	c, id := l.cur, l.curID
	l.cur, l.records = nil, 0
	path, err := c.Save(l.outDir, l.namer.Name(id))
	if err != nil {
		l.log().Error("failed to save container", "id", id.String(), "error", err)
		return err
	}
	l.saved = append(l.saved, path)
	l.log().Debug("saved container", "id", id.String(), "path", path)
	return nil
}

// abandon saves the current container without an end marker.
func (l *Loader) abandon() {
	if l.cur == nil {
		return
	}
	_ = l.save() //nolint:errcheck // already failing; save logs its own error
}

// Close writes the end marker when it fits and saves the open container.
// Containers without records are never saved.
func (l *Loader) Close() error {
	if l.cur == nil {
		return nil
	}
	if l.records == 0 {
		l.cur = nil
		return nil
	}
	if l.cur.Remaining() >= wire.EndMarkerSize {
		if _, err := l.cur.Write(wire.AppendEndMarker(nil)); err != nil {
			l.log().Debug("end marker not written", "id", l.curID.String(), "error", err)
		}
	}
	return l.save()
}
