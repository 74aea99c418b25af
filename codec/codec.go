// Package codec defines the byte-stream boundary that containers are
// written through and read back from.
//
// A codec turns a bounded in-memory byte stream into one physical
// container file and back. The archive layer never sees the on-disk
// representation: it writes and reads plain bytes through a [Container]
// and relies only on two signals, a short write when the container is
// full and a short read when it is exhausted.
//
// Codecs are selected by name from a [Registry], which is an explicit
// value built once at startup:
//
//	reg := codec.NewRegistry()
//	c, err := reg.New("zstd", codec.Config{KeyHash: key, Capacity: 1 << 20})
package codec

import (
	"errors"
	"io"
)

// DefaultCapacity is the container capacity used when Config.Capacity is zero.
const DefaultCapacity = 1 << 20

var (
	// ErrFull is returned by Container writes that did not fit.
	ErrFull = errors.New("codec: container full")

	// ErrUnknownCodec is returned when a registry has no codec with the requested name.
	ErrUnknownCodec = errors.New("codec: unknown codec")

	// ErrInvalidContainer is returned when a file cannot be decoded by a codec.
	ErrInvalidContainer = errors.New("codec: invalid container")
)

// Container is one container's byte stream.
//
// Reads stop with io.EOF once the stream is exhausted and writes stop with
// ErrFull once capacity is reached; both report how many bytes were
// actually transferred. Neither condition is a failure of the container.
type Container interface {
	io.Reader
	io.Writer
	io.ByteWriter

	// Skip discards up to n bytes and returns how many were skipped.
	Skip(n int64) (int64, error)

	// Remaining returns how many bytes can still be written or read.
	Remaining() int64

	// Secure keys every byte after the current position with the
	// container's ArchiveID. It must be called right after the ID is
	// written or read.
	Secure(id []byte) error

	// Save encodes the container into dir/name and returns the path written.
	Save(dir, name string) (string, error)
}

// Codec creates and loads containers of one on-disk encoding.
type Codec interface {
	// Name returns the registry name of the codec.
	Name() string

	// Ext returns the file extension of saved containers, with its leading dot.
	Ext() string

	// NewContainer returns an empty container ready for writing.
	NewContainer() Container

	// Load decodes the container file at path for reading.
	Load(path string) (Container, error)
}

// Config configures a codec instance.
type Config struct {
	// KeyHash keys container streams. See DeriveKeyHash.
	KeyHash [KeySize]byte

	// Capacity is the number of stream bytes one container can hold.
	// Zero uses DefaultCapacity.
	Capacity int64
}

func (c Config) capacity() int64 {
	if c.Capacity <= 0 {
		return DefaultCapacity
	}
	return c.Capacity
}
