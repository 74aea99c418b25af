package codec

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20"
)

// memContainer buffers one container's stream in memory. Encoding to and
// from the on-disk form happens only in Save and Load.
type memContainer struct {
	buf      []byte
	pos      int
	capacity int64
	reading  bool

	keyHash [KeySize]byte
	cipher  *chacha20.Cipher
	encode  encodeFunc
}

type (
	encodeFunc func(stream []byte) ([]byte, error)
	decodeFunc func(data []byte) ([]byte, error)
)

func newWriteContainer(cfg Config, encode encodeFunc) *memContainer {
	capacity := cfg.capacity()
	return &memContainer{
		buf:      make([]byte, 0, min(capacity, 64<<10)),
		capacity: capacity,
		keyHash:  cfg.KeyHash,
		encode:   encode,
	}
}

func newReadContainer(cfg Config, stream []byte) *memContainer {
	return &memContainer{
		buf:      stream,
		capacity: int64(len(stream)),
		reading:  true,
		keyHash:  cfg.KeyHash,
	}
}

// Read implements io.Reader. A read that reaches the end of the stream
// returns io.EOF together with the bytes it did read.
func (c *memContainer) Read(p []byte) (int, error) {
	if !c.reading {
		return 0, errors.New("codec: read on a container opened for writing")
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, c.buf[c.pos:])
	c.xor(p[:n], p[:n])
	c.pos += n
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write implements io.Writer. Bytes beyond capacity are dropped and
// reported with ErrFull.
func (c *memContainer) Write(p []byte) (int, error) {
	if c.reading {
		return 0, errors.New("codec: write on a container opened for reading")
	}
	n := len(p)
	if free := c.Remaining(); int64(n) > free {
		n = int(free)
	}
	start := len(c.buf)
	c.buf = append(c.buf, p[:n]...)
	c.xor(c.buf[start:], c.buf[start:])
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// WriteByte implements io.ByteWriter.
func (c *memContainer) WriteByte(b byte) error {
	_, err := c.Write([]byte{b})
	return err
}

// Skip advances the read position. The keystream advances with it.
func (c *memContainer) Skip(n int64) (int64, error) {
	if !c.reading {
		return 0, errors.New("codec: skip on a container opened for writing")
	}
	if n <= 0 {
		return 0, nil
	}
	if left := c.Remaining(); n > left {
		n = left
	}
	end := c.pos + int(n)
	c.xor(c.buf[c.pos:end], c.buf[c.pos:end])
	c.pos = end
	return n, nil
}

// Remaining returns the bytes left to read, or the free capacity when writing.
func (c *memContainer) Remaining() int64 {
	if c.reading {
		return int64(len(c.buf) - c.pos)
	}
	return c.capacity - int64(len(c.buf))
}

// Secure starts the keyed stream at the current position.
func (c *memContainer) Secure(id []byte) error {
	if c.cipher != nil {
		return errors.New("codec: stream already secured")
	}
	cipher, err := newStreamCipher(c.keyHash, id)
	if err != nil {
		return err
	}
	c.cipher = cipher
	return nil
}

func (c *memContainer) xor(dst, src []byte) {
	if c.cipher != nil && len(src) > 0 {
		c.cipher.XORKeyStream(dst, src)
	}
}

// Save encodes the stream and writes it to dir/name through a temp file
// and rename, so a partially written container is never visible.
func (c *memContainer) Save(dir, name string) (string, error) {
	if c.reading {
		return "", errors.New("codec: save on a container opened for reading")
	}
	data, err := c.encode(c.buf)
	if err != nil {
		return "", fmt.Errorf("encode container %s: %w", name, err)
	}

	dest := filepath.Join(dir, name)
	tmp, err := createTempFile(dir, ".stow-")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()           //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("write container %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("close container %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("rename to %s: %w", dest, err)
	}
	return dest, nil
}

func createTempFile(dir, prefix string) (*os.File, error) {
	const attempts = 10
	for range attempts {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, prefix+hex.EncodeToString(b[:])), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return nil, errors.New("create temp file: exhausted retries")
}
