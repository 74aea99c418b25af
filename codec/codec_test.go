package codec

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.Equal(t, []string{LZ4Name, RawName, SnappyName, ZstdName}, reg.Names())

	_, err := reg.New("png", Config{})
	require.ErrorIs(t, err, ErrUnknownCodec)

	exts := make(map[string]bool)
	for _, name := range reg.Names() {
		c, err := reg.New(name, Config{})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
		assert.False(t, exts[c.Ext()], "extension %s reused", c.Ext())
		exts[c.Ext()] = true
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("custom", NewRaw)
	c, err := reg.New("custom", Config{})
	require.NoError(t, err)
	assert.Equal(t, RawName, c.Name())
	assert.Contains(t, reg.Names(), "custom")
}

func TestContainerCapacity(t *testing.T) {
	t.Parallel()

	c, err := NewRaw(Config{Capacity: 10})
	require.NoError(t, err)
	w := c.NewContainer()

	n, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(4), w.Remaining())

	n, err = w.Write([]byte("ghijkl"))
	require.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 4, n)
	assert.Zero(t, w.Remaining())

	require.ErrorIs(t, w.WriteByte('x'), ErrFull)
}

func TestRoundTripAllCodecs(t *testing.T) {
	t.Parallel()

	key := DeriveKeyHash([]byte("secret"))
	id := []byte{0, 0, 0, 0, 0, 0, 0, 7, 0, 0, 0, 0}
	payload := bytes.Repeat([]byte("payload-"), 500)

	reg := NewRegistry()
	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			c, err := reg.New(name, Config{KeyHash: key, Capacity: 1 << 16})
			require.NoError(t, err)

			w := c.NewContainer()
			_, err = w.Write(id)
			require.NoError(t, err)
			require.NoError(t, w.Secure(id))
			_, err = w.Write(payload)
			require.NoError(t, err)

			path, err := w.Save(dir, "c"+c.Ext())
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "c"+c.Ext()), path)

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.False(t, bytes.Contains(raw, []byte("payload-payload-")), "stream must be keyed")

			r, err := c.Load(path)
			require.NoError(t, err)
			gotID := make([]byte, len(id))
			_, err = io.ReadFull(r, gotID)
			require.NoError(t, err)
			assert.Equal(t, id, gotID)
			require.NoError(t, r.Secure(gotID))

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestSkipAdvancesKeystream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := NewRaw(Config{KeyHash: DeriveKeyHash(nil)})
	require.NoError(t, err)

	w := c.NewContainer()
	require.NoError(t, w.Secure([]byte("id")))
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	path, err := w.Save(dir, "skip.stw")
	require.NoError(t, err)

	r, err := c.Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Secure([]byte("id")))
	n, err := r.Skip(4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	rest := make([]byte, 3)
	_, err = io.ReadFull(r, rest)
	require.NoError(t, err)
	assert.Equal(t, "456", string(rest))

	n, err = r.Skip(100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	_, err = r.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestWrongKeyGarbles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good, err := NewRaw(Config{KeyHash: DeriveKeyHash([]byte("a"))})
	require.NoError(t, err)
	bad, err := NewRaw(Config{KeyHash: DeriveKeyHash([]byte("b"))})
	require.NoError(t, err)

	w := good.NewContainer()
	require.NoError(t, w.Secure([]byte("id")))
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	path, err := w.Save(dir, "k.stw")
	require.NoError(t, err)

	r, err := bad.Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Secure([]byte("id")))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotEqual(t, "hello world", string(got))
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "junk")
	require.NoError(t, os.WriteFile(path, []byte("definitely not zstd"), 0o600))

	for _, f := range []Factory{NewZstd, NewLZ4, NewSnappy} {
		c, err := f(Config{})
		require.NoError(t, err)
		_, err = c.Load(path)
		require.ErrorIs(t, err, ErrInvalidContainer, c.Name())
	}
}
