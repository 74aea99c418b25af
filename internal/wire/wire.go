// Package wire implements the binary layout written inside every container.
//
// A container starts with its ArchiveID (stream UUID and sequence number),
// followed by a version byte and a run of records. All integers are
// big-endian. Everything after the ArchiveID passes through the codec's
// keyed stream, so the ArchiveID must always be read first.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"time"
	"unicode/utf8"
)

// Version is the format version written after the ArchiveID.
const Version byte = 1

// EndMarker is the fragment number that terminates the records of a container.
const EndMarker int64 = math.MaxInt64

// IDSize is the encoded size of an ArchiveID.
const IDSize = 12

// EndMarkerSize is the encoded size of the end marker.
const EndMarkerSize = 8

// MaxNameLength is the longest name a record can carry.
const MaxNameLength = math.MaxUint16

const (
	// fixed part shared by every record: fragment, type, name length.
	commonSize = 8 + 1 + 2
	// extra fixed part of a file record: created, modified, permissions, remaining.
	fileSize = 8 + 8 + 2 + 8
)

var (
	// ErrTruncated is returned when a field cannot be read in full.
	ErrTruncated = errors.New("wire: truncated")

	// ErrMalformed is returned when a header decodes to inconsistent values.
	ErrMalformed = errors.New("wire: malformed header")

	// ErrEndOfRecords is returned when the end marker is read.
	ErrEndOfRecords = errors.New("wire: end of records")
)

// EntryType distinguishes file records from folder records.
type EntryType uint8

const (
	EntryFile   EntryType = 1
	EntryFolder EntryType = 2
)

// String returns the human-readable name of the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryFolder:
		return "folder"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ArchiveID identifies one container.
type ArchiveID struct {
	Stream   uint64
	Sequence uint32
}

// Next returns the ID of the following container in the same stream.
func (id ArchiveID) Next() ArchiveID {
	return ArchiveID{Stream: id.Stream, Sequence: id.Sequence + 1}
}

// String formats the ID as stream/sequence.
func (id ArchiveID) String() string {
	return fmt.Sprintf("%016x/%d", id.Stream, id.Sequence)
}

// AppendBinary appends the encoded ID to b.
func (id ArchiveID) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, id.Stream)
	return binary.BigEndian.AppendUint32(b, id.Sequence)
}

// Bytes returns the encoded ID.
func (id ArchiveID) Bytes() []byte {
	return id.AppendBinary(make([]byte, 0, IDSize))
}

// ParseID decodes an ArchiveID from the first IDSize bytes of b.
func ParseID(b []byte) (ArchiveID, error) {
	if len(b) < IDSize {
		return ArchiveID{}, ErrTruncated
	}
	return ArchiveID{
		Stream:   binary.BigEndian.Uint64(b[:8]),
		Sequence: binary.BigEndian.Uint32(b[8:IDSize]),
	}, nil
}

// ReadID reads an ArchiveID from r.
func ReadID(r io.Reader) (ArchiveID, error) {
	var buf [IDSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return ArchiveID{}, err
	}
	return ParseID(buf[:])
}

// Header is the fixed part of one record. For file records the content
// follows the header directly.
type Header struct {
	// Fragment is the position of this record in its file's chain; 1 is the first.
	Fragment int64
	Type     EntryType
	Name     string

	// The remaining fields are only encoded for file records.
	Created     time.Time
	Modified    time.Time
	Permissions fs.FileMode
	// Remaining is the number of content bytes not yet written when this
	// record was started.
	Remaining int64
}

// Size returns the encoded size of the header.
func (h *Header) Size() int {
	n := commonSize + len(h.Name)
	if h.Type == EntryFile {
		n += fileSize
	}
	return n
}

// AppendBinary appends the encoded header to b.
func (h *Header) AppendBinary(b []byte) ([]byte, error) {
	if err := ValidName(h.Name); err != nil {
		return b, err
	}
	if h.Fragment < 1 || h.Fragment == EndMarker {
		return b, fmt.Errorf("%w: fragment %d", ErrMalformed, h.Fragment)
	}
	b = binary.BigEndian.AppendUint64(b, uint64(h.Fragment))
	b = append(b, byte(h.Type))
	b = binary.BigEndian.AppendUint16(b, uint16(len(h.Name))) //nolint:gosec // checked above
	b = append(b, h.Name...)
	if h.Type != EntryFile {
		return b, nil
	}
	if h.Remaining < 0 {
		return b, fmt.Errorf("%w: remaining %d", ErrMalformed, h.Remaining)
	}
	b = binary.BigEndian.AppendUint64(b, uint64(timeToWire(h.Created)))
	b = binary.BigEndian.AppendUint64(b, uint64(timeToWire(h.Modified)))
	b = binary.BigEndian.AppendUint16(b, uint16(h.Permissions&0o7777)) //nolint:gosec // masked
	b = binary.BigEndian.AppendUint64(b, uint64(h.Remaining))
	return b, nil
}

// ValidName reports whether name can be stored in a record: a non-empty,
// unrooted, slash-separated UTF-8 path without "." or ".." elements that
// fits the name length field. Readers stop at a record whose name is empty
// or not UTF-8, so writers must never emit one.
func ValidName(name string) error {
	switch {
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name length %d", ErrMalformed, len(name))
	case name == "", name == ".", !fs.ValidPath(name):
		return fmt.Errorf("%w: invalid name %q", ErrMalformed, name)
	}
	return nil
}

// AppendEndMarker appends the end-of-records marker to b.
func AppendEndMarker(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(EndMarker))
}

// ReadHeader reads one record header from r.
//
// It returns ErrEndOfRecords when the end marker is found, ErrTruncated
// when r runs out before the header is complete, and ErrMalformed when
// the fields are inconsistent. All three mean there are no more records.
func ReadHeader(r io.Reader) (Header, error) {
	var fixed [commonSize]byte
	if err := readFull(r, fixed[:]); err != nil {
		// A bare end marker at the very end of the container is 8 bytes,
		// shorter than the common header.
		return Header{}, endOrTruncated(fixed[:], err)
	}

	h := Header{
		Fragment: int64(binary.BigEndian.Uint64(fixed[:8])), //nolint:gosec // sign checked below
		Type:     EntryType(fixed[8]),
	}
	if h.Fragment == EndMarker {
		return Header{}, ErrEndOfRecords
	}
	if h.Fragment < 1 {
		return Header{}, fmt.Errorf("%w: fragment %d", ErrMalformed, h.Fragment)
	}
	if h.Type != EntryFile && h.Type != EntryFolder {
		return Header{}, fmt.Errorf("%w: entry type %d", ErrMalformed, h.Type)
	}

	name := make([]byte, binary.BigEndian.Uint16(fixed[9:11]))
	if err := readFull(r, name); err != nil {
		return Header{}, err
	}
	if len(name) == 0 || !utf8.Valid(name) {
		return Header{}, fmt.Errorf("%w: invalid name", ErrMalformed)
	}
	h.Name = string(name)

	if h.Type == EntryFolder {
		return h, nil
	}

	var rest [fileSize]byte
	if err := readFull(r, rest[:]); err != nil {
		return Header{}, err
	}
	h.Created = timeFromWire(int64(binary.BigEndian.Uint64(rest[0:8])))   //nolint:gosec // any value is a valid instant
	h.Modified = timeFromWire(int64(binary.BigEndian.Uint64(rest[8:16]))) //nolint:gosec // any value is a valid instant
	h.Permissions = fs.FileMode(binary.BigEndian.Uint16(rest[16:18])) & 0o7777
	h.Remaining = int64(binary.BigEndian.Uint64(rest[18:26])) //nolint:gosec // sign checked below
	if h.Remaining < 0 {
		return Header{}, fmt.Errorf("%w: remaining %d", ErrMalformed, h.Remaining)
	}
	return h, nil
}

func endOrTruncated(buf []byte, err error) error {
	if errors.Is(err, ErrTruncated) && int64(binary.BigEndian.Uint64(buf[:8])) == EndMarker { //nolint:gosec // comparison only
		return ErrEndOfRecords
	}
	return err
}

// readFull reads len(buf) bytes, mapping short reads to ErrTruncated.
// Bytes read before the short read stay in buf.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	default:
		return err
	}
}

func timeToWire(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromWire(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
