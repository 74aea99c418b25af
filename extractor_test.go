package stow

import (
	"context"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/stow/internal/testutil"
	"github.com/meigma/stow/internal/wire"
)

// fourFragments writes a.txt, a 13000 byte big.bin and b.txt through one
// loader with 4096 byte containers. big.bin spans four containers and
// b.txt follows its last fragment.
func fourFragments(t *testing.T) (containers string, data map[string][]byte) {
	t.Helper()
	src, containers := t.TempDir(), t.TempDir()
	data = map[string][]byte{
		"a.txt":   testutil.RandomBytes(1, 100),
		"big.bin": testutil.RandomBytes(2, 13000),
		"b.txt":   testutil.RandomBytes(3, 100),
	}
	loadEntries(t, containers, 4096,
		sourceFile(t, src, "a.txt", data["a.txt"]),
		sourceFile(t, src, "big.bin", data["big.bin"]),
		sourceFile(t, src, "b.txt", data["b.txt"]),
	)
	return containers, data
}

func TestExtractFolderMissingFragment(t *testing.T) {
	t.Parallel()

	containers, data := fourFragments(t)
	x := newTestExtractor(t)
	listing := viewAll(t, x, containers)
	require.Len(t, listing, 4)
	require.NoError(t, os.Remove(containerOf(t, listing, "big.bin", 3)))

	out := t.TempDir()
	report, err := x.ExtractFolder(t.Context(), containers, out)
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "big.bin", failed[0].Name)
	require.ErrorIs(t, failed[0].Err, ErrMissingContainer)

	for _, name := range []string{"a.txt", "b.txt"} {
		got, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, data[name], got, name)
	}
	_, err = os.Stat(filepath.Join(out, "big.bin"))
	require.ErrorIs(t, err, os.ErrNotExist, "partial output is discarded")
}

func TestExtractFolderBrokenChain(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	x := newTestExtractor(t)
	listing := viewAll(t, x, containers)

	// Replace fragment 2 with an unrelated container under the same name.
	victim := containerOf(t, listing, "big.bin", 2)
	other := t.TempDir()
	l := loadEntries(t, other, 4096, sourceFile(t, t.TempDir(), "big.bin", []byte("impostor")))
	require.NoError(t, os.Rename(l.Containers()[0], victim))

	report, err := x.ExtractFolder(t.Context(), containers, t.TempDir())
	require.NoError(t, err)
	failed := report.Failed()
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0].Err, ErrBrokenChain)
}

func TestExtractFolderIdempotentRescan(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	x := newTestExtractor(t)
	out := t.TempDir()

	first, err := x.ExtractFolder(t.Context(), containers, out)
	require.NoError(t, err)
	require.Empty(t, first.Failed())
	require.Len(t, first.Files, 3)
	tree := testutil.ReadTree(t, out)

	second, err := x.ExtractFolder(t.Context(), containers, out)
	require.NoError(t, err)
	require.Empty(t, second.Failed())
	require.Len(t, second.Files, 3)
	for _, f := range second.Files {
		assert.True(t, f.Skipped, f.Name)
	}
	assert.Equal(t, first.Explored, second.Explored)
	testutil.RequireSameTree(t, tree, testutil.ReadTree(t, out))
}

func TestExtractFileFollowsChain(t *testing.T) {
	t.Parallel()

	containers, data := fourFragments(t)
	x := newTestExtractor(t)
	listing := viewAll(t, x, containers)
	first := containerOf(t, listing, "big.bin", 1)

	out := t.TempDir()
	report, err := x.ExtractFile(t.Context(), first, out)
	require.NoError(t, err)
	require.Len(t, report.Files, 2, "a.txt and big.bin start here")
	require.Empty(t, report.Failed())

	var big FileResult
	for _, f := range report.Files {
		if f.Name == "big.bin" {
			big = f
		}
	}
	assert.Len(t, big.Containers, 4)
	assert.Equal(t, int64(13000), big.Size)
	assert.NotEmpty(t, big.Digest)

	got, err := os.ReadFile(filepath.Join(out, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data["big.bin"], got)
	assert.Equal(t, digest.FromBytes(got), big.Digest)

	// Fragments 2 and 3 fill their containers; the container of fragment 4
	// still holds b.txt.
	assert.Contains(t, report.Explored, containerOf(t, listing, "big.bin", 2))
	assert.Contains(t, report.Explored, containerOf(t, listing, "big.bin", 3))
	assert.NotContains(t, report.Explored, containerOf(t, listing, "big.bin", 4))
}

func TestExtractFolderRenamedContainer(t *testing.T) {
	t.Parallel()

	containers, data := fourFragments(t)
	x := newTestExtractor(t)
	listing := viewAll(t, x, containers)
	require.NoError(t, os.Rename(containerOf(t, listing, "big.bin", 2), filepath.Join(containers, "renamed.bin")))

	out := t.TempDir()
	report, err := x.ExtractFolder(t.Context(), containers, out)
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	require.Empty(t, report.Ignored)

	got, err := os.ReadFile(filepath.Join(out, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data["big.bin"], got)
}

func TestExtractFolderPrompt(t *testing.T) {
	t.Parallel()

	containers, data := fourFragments(t)
	listing := viewAll(t, newTestExtractor(t), containers)
	elsewhere := t.TempDir()
	moved := containerOf(t, listing, "big.bin", 2)
	require.NoError(t, os.Rename(moved, filepath.Join(elsewhere, filepath.Base(moved))))

	var asked []string
	x := newTestExtractor(t, ExtractWithFolderPrompt(func(_ context.Context, missing string) (string, bool) {
		asked = append(asked, missing)
		return elsewhere, true
	}))

	out := t.TempDir()
	report, err := x.ExtractFolder(t.Context(), containers, out)
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	assert.Equal(t, []string{filepath.Base(moved)}, asked)

	got, err := os.ReadFile(filepath.Join(out, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data["big.bin"], got)
}

func TestExtractFolderPromptGivesUp(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	listing := viewAll(t, newTestExtractor(t), containers)
	require.NoError(t, os.Remove(containerOf(t, listing, "big.bin", 2)))

	calls := 0
	x := newTestExtractor(t, ExtractWithFolderPrompt(func(context.Context, string) (string, bool) {
		calls++
		return "", false
	}))
	report, err := x.ExtractFolder(t.Context(), containers, t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	require.ErrorIs(t, report.Failed()[0].Err, ErrMissingContainer)
	assert.Equal(t, 1, calls)
}

func TestExtractFolderIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	require.NoError(t, os.WriteFile(filepath.Join(containers, "notes.txt"), []byte("x"), 0o644))

	report, err := newTestExtractor(t, ExtractWithIndex(true)).ExtractFolder(t.Context(), containers, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	assert.Len(t, report.Files, 3)
	assert.Equal(t, []string{filepath.Join(containers, "notes.txt")}, report.Ignored)
}

func TestExtractIndex(t *testing.T) {
	t.Parallel()

	containers, data := fourFragments(t)
	x := newTestExtractor(t)
	listing := viewAll(t, x, containers)
	first := containerOf(t, listing, "big.bin", 1)
	last := containerOf(t, listing, "big.bin", 4)

	out := t.TempDir()
	res, err := x.ExtractIndex(t.Context(), first, 1, out)
	require.NoError(t, err)
	assert.Equal(t, "big.bin", res.Name)
	got, err := os.ReadFile(filepath.Join(out, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data["big.bin"], got)
	_, err = os.Stat(filepath.Join(out, "a.txt"))
	require.ErrorIs(t, err, os.ErrNotExist, "only the requested record is extracted")

	_, err = x.ExtractIndex(t.Context(), last, 0, out)
	require.ErrorIs(t, err, ErrNotFirstFragment)

	res, err = x.ExtractIndex(t.Context(), last, 1, out)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", res.Name)

	_, err = x.ExtractIndex(t.Context(), last, 2, out)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = x.ExtractIndex(t.Context(), last, -1, out)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestViewNoFilesRecovered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newRawCodec(t, 1024)
	id := ArchiveID{Stream: 9, Sequence: 0}
	w := c.NewContainer()
	_, err := w.Write(id.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Secure(id.Bytes()))
	require.NoError(t, w.WriteByte(wire.Version))
	path, err := w.Save(dir, "header-only.stw")
	require.NoError(t, err)

	contents, err := newTestExtractor(t).View(path)
	require.ErrorIs(t, err, ErrNoFilesRecovered)
	require.NotNil(t, contents)
	assert.Equal(t, id, contents.ID)
	assert.Empty(t, contents.Files)
}

func TestViewWrongKey(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	listing := viewAll(t, newTestExtractor(t), containers)

	x := newTestExtractor(t, ExtractWithKey([]byte("wrong")))
	for path := range listing {
		_, err := x.View(path)
		require.Error(t, err)
	}
}

func TestViewListing(t *testing.T) {
	t.Parallel()

	containers, _ := fourFragments(t)
	listing := viewAll(t, newTestExtractor(t), containers)

	ac := listing[containerOf(t, listing, "big.bin", 1)]
	require.Len(t, ac.Files, 2)
	assert.Equal(t, "a.txt", ac.Files[0].Name)
	assert.False(t, ac.Files[0].Fragmented())
	assert.Equal(t, "big.bin", ac.Files[1].Name)
	assert.Equal(t, 1, ac.Files[1].Index)
	assert.True(t, ac.Files[1].Fragmented())
	assert.Equal(t, int64(13000), ac.Files[1].Remaining)

	ac = listing[containerOf(t, listing, "big.bin", 4)]
	require.Len(t, ac.Files, 2)
	assert.True(t, ac.Files[0].Continuation())
	assert.Equal(t, "b.txt", ac.Files[1].Name)
}

func TestSortBySequence(t *testing.T) {
	t.Parallel()

	paths := []string{
		"/c/ffff_000010.stz",
		"/c/renamed.stz",
		"/c/aaaa_000002.stz",
		"/c/bbbb_000002.stz",
		"/c/0000_000001.stz",
		"/c/another",
	}
	sortBySequence(paths)
	assert.Equal(t, []string{
		"/c/0000_000001.stz",
		"/c/aaaa_000002.stz",
		"/c/bbbb_000002.stz",
		"/c/ffff_000010.stz",
		"/c/another",
		"/c/renamed.stz",
	}, paths)
}

// rawFileRecord encodes a single-fragment file record without the name
// checks the loader applies, as a foreign writer could.
func rawFileRecord(name string, content []byte) []byte {
	b := binary.BigEndian.AppendUint64(nil, 1)
	b = append(b, byte(EntryFile))
	b = binary.BigEndian.AppendUint16(b, uint16(len(name))) //nolint:gosec // short test names
	b = append(b, name...)
	b = binary.BigEndian.AppendUint64(b, 0)
	b = binary.BigEndian.AppendUint64(b, 0)
	b = binary.BigEndian.AppendUint16(b, 0o644)
	b = binary.BigEndian.AppendUint64(b, uint64(len(content)))
	return append(b, content...)
}

func TestExtractFileRejectsEscapingNames(t *testing.T) {
	t.Parallel()

	for _, overwrite := range []bool{false, true} {
		t.Run(fmt.Sprintf("overwrite=%t", overwrite), func(t *testing.T) {
			t.Parallel()

			base := t.TempDir()
			c := newRawCodec(t, 1024)
			id := ArchiveID{Stream: 7}
			w := c.NewContainer()
			_, err := w.Write(id.Bytes())
			require.NoError(t, err)
			require.NoError(t, w.Secure(id.Bytes()))
			require.NoError(t, w.WriteByte(wire.Version))
			_, err = w.Write(rawFileRecord("d/../../evil.txt", []byte("escape")))
			require.NoError(t, err)
			_, err = w.Write(rawFileRecord("ok.txt", []byte("fine")))
			require.NoError(t, err)
			_, err = w.Write(wire.AppendEndMarker(nil))
			require.NoError(t, err)
			path, err := w.Save(base, "foreign.stw")
			require.NoError(t, err)

			out := filepath.Join(base, "a", "b", "out")
			x := newTestExtractor(t, ExtractWithOverwrite(overwrite))
			report, err := x.ExtractFile(t.Context(), path, out)
			require.NoError(t, err)
			require.Len(t, report.Files, 2)

			evil := report.Files[0]
			assert.Equal(t, "d/../../evil.txt", evil.Name)
			assert.False(t, evil.Skipped)
			require.ErrorIs(t, evil.Err, fs.ErrInvalid)
			assert.Empty(t, evil.Digest)

			assert.Equal(t, "ok.txt", report.Files[1].Name)
			require.NoError(t, report.Files[1].Err)
			got, err := os.ReadFile(filepath.Join(out, "ok.txt"))
			require.NoError(t, err)
			assert.Equal(t, "fine", string(got))

			_, err = os.Stat(filepath.Join(base, "a", "b", "evil.txt"))
			require.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}
