package stow

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/stow/codec"
)

var testKey = codec.DeriveKeyHash([]byte("correct horse battery staple"))

func newRawCodec(t *testing.T, capacity int64) codec.Codec {
	t.Helper()
	c, err := codec.NewRaw(codec.Config{KeyHash: testKey, Capacity: capacity})
	require.NoError(t, err)
	return c
}

func newTestExtractor(t *testing.T, opts ...ExtractOption) *Extractor {
	t.Helper()
	base := []ExtractOption{ExtractWithCodec(codec.RawName), ExtractWithKeyHash(testKey)}
	x, err := NewExtractor(append(base, opts...)...)
	require.NoError(t, err)
	return x
}

// sourceFile writes data below dir and returns its Metadata under name.
func sourceFile(t *testing.T, dir, name string, data []byte) Metadata {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o640))
	m, err := MetadataFor(path, name)
	require.NoError(t, err)
	return m
}

// sourceFolder creates an empty folder below dir and returns its Metadata.
func sourceFolder(t *testing.T, dir, name string) Metadata {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(path, 0o755))
	m, err := MetadataFor(path, name)
	require.NoError(t, err)
	return m
}

// loadEntries writes entries with one raw-codec loader and closes it.
func loadEntries(t *testing.T, outDir string, capacity int64, entries ...Metadata) *Loader {
	t.Helper()
	l, err := NewLoader(newRawCodec(t, capacity), testKey, outDir)
	require.NoError(t, err)
	for _, m := range entries {
		require.NoError(t, l.WriteFile(m), m.Path)
	}
	require.NoError(t, l.Close())
	return l
}

// viewAll lists every container below dir, keyed by path.
func viewAll(t *testing.T, x *Extractor, dir string) map[string]*ArchiveContents {
	t.Helper()
	fc, err := x.ViewFolder(t.Context(), dir)
	require.NoError(t, err)
	require.Empty(t, fc.Ignored)
	out := make(map[string]*ArchiveContents, len(fc.Archives))
	for _, ac := range fc.Archives {
		out[ac.Path] = ac
	}
	return out
}

// containerOf returns the path of the container holding fragment of name.
func containerOf(t *testing.T, listing map[string]*ArchiveContents, name string, fragment int64) string {
	t.Helper()
	for path, ac := range listing {
		if slices.ContainsFunc(ac.Files, func(f FileContents) bool {
			return f.Name == name && f.Fragment == fragment
		}) {
			return path
		}
	}
	t.Fatalf("no container holds fragment %d of %s", fragment, name)
	return ""
}
