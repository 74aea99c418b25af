// Package testutil provides helpers for building and comparing file trees
// in tests.
package testutil

import (
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// RandomBytes returns n pseudo-random bytes derived from seed.
func RandomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test data
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

// File describes one entry of a test tree. A nil Content with Dir set
// creates an empty folder.
type File struct {
	Content []byte
	Mode    fs.FileMode
	ModTime time.Time
	Dir     bool
}

// WriteTree creates the entries below root. Paths are slash-separated.
func WriteTree(tb testing.TB, root string, files map[string]File) {
	tb.Helper()
	for name, f := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if f.Dir {
			require.NoError(tb, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		require.NoError(tb, os.WriteFile(path, f.Content, mode))
		require.NoError(tb, os.Chmod(path, mode))
		if !f.ModTime.IsZero() {
			require.NoError(tb, os.Chtimes(path, f.ModTime, f.ModTime))
		}
	}
}

// Entry is the observed state of one entry of a tree.
type Entry struct {
	Dir     bool
	Digest  digest.Digest
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// ReadTree returns every file and empty folder below root, keyed by
// slash-separated path relative to root.
func ReadTree(tb testing.TB, root string) map[string]Entry {
	tb.Helper()
	out := make(map[string]Entry)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			children, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				out[name] = Entry{Dir: true}
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[name] = Entry{
			Digest:  digest.FromBytes(data),
			Size:    info.Size(),
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	require.NoError(tb, err)
	return out
}

// RequireSameTree asserts that got holds the same entries as want, with
// equal content, permissions and modification times.
func RequireSameTree(tb testing.TB, want, got map[string]Entry) {
	tb.Helper()
	require.Len(tb, got, len(want))
	for name, w := range want {
		g, ok := got[name]
		require.True(tb, ok, "missing %s", name)
		require.Equal(tb, w.Dir, g.Dir, name)
		if w.Dir {
			continue
		}
		require.Equal(tb, w.Digest, g.Digest, name)
		require.Equal(tb, w.Mode, g.Mode, name)
		require.True(tb, w.ModTime.Equal(g.ModTime), "%s: mtime %v, want %v", name, g.ModTime, w.ModTime)
	}
}
