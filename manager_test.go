package stow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/stow/internal/testutil"
	"github.com/meigma/stow/internal/wire"
)

func TestManagerLocate(t *testing.T) {
	t.Parallel()

	src, containers := t.TempDir(), t.TempDir()
	l := loadEntries(t, containers, 1024, sourceFile(t, src, "f", testutil.RandomBytes(1, 1500)))
	require.Len(t, l.Containers(), 2)

	c := newRawCodec(t, 1024)
	namer := wire.NewNamer(testKey, c.Ext())
	second := namer.Name(ArchiveID{Stream: l.Stream(), Sequence: 1})

	// Hide the container one level down under another name.
	nested := filepath.Join(containers, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))
	hidden := filepath.Join(nested, "hidden")
	require.NoError(t, os.Rename(filepath.Join(containers, second), hidden))

	m := NewManager(c, testKey, nil, nil)
	got, err := m.Locate(t.Context(), second, containers)
	require.NoError(t, err)
	assert.Equal(t, hidden, got)

	_, err = m.Locate(t.Context(), namer.Name(ArchiveID{Stream: l.Stream(), Sequence: 2}), containers)
	require.ErrorIs(t, err, ErrMissingContainer)
}

func TestManagerExclude(t *testing.T) {
	t.Parallel()

	src, containers := t.TempDir(), t.TempDir()
	out := filepath.Join(containers, "out")
	l := loadEntries(t, out, 1024, sourceFile(t, src, "f", []byte("x")))

	c := newRawCodec(t, 1024)
	name := wire.NewNamer(testKey, c.Ext()).Name(ArchiveID{Stream: l.Stream()})
	require.NoError(t, os.Rename(filepath.Join(out, name), filepath.Join(out, "moved")))

	m := NewManager(c, testKey, nil, nil)
	m.Exclude(out)
	_, err := m.Locate(t.Context(), name, containers)
	require.ErrorIs(t, err, ErrMissingContainer)
}

func TestManagerExplored(t *testing.T) {
	t.Parallel()

	m := NewManager(newRawCodec(t, 1024), testKey, nil, nil)
	dir := t.TempDir()
	assert.False(t, m.Explored(filepath.Join(dir, "a")))

	m.MarkExplored(filepath.Join(dir, "b"))
	m.MarkExplored(filepath.Join(dir, ".", "a"))
	assert.True(t, m.Explored(filepath.Join(dir, "a")))
	assert.Equal(t, []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}, m.ExploredPaths())
}
