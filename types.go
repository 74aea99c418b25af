package stow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/stow/internal/platform"
	"github.com/meigma/stow/internal/wire"
)

// EntryType distinguishes files from folders.
type EntryType = wire.EntryType

// Entry types.
const (
	EntryFile   = wire.EntryFile
	EntryFolder = wire.EntryFolder
)

// ArchiveID identifies one container: the stream it belongs to and its
// position in that stream.
type ArchiveID = wire.ArchiveID

// Metadata describes one filesystem entry to archive.
type Metadata struct {
	// Path is the slash-separated name stored in the archive.
	Path string

	// Source is the filesystem path content is read from.
	Source string

	Type     EntryType
	Created  time.Time
	Modified time.Time
	Mode     fs.FileMode

	// Size is the content length at the time the entry was indexed.
	Size int64
}

// MetadataFor stats source and returns its Metadata under the archive
// name name. Symlinks are rejected with ErrSymlink.
func MetadataFor(source, name string) (Metadata, error) {
	info, err := os.Lstat(source)
	if err != nil {
		return Metadata{}, err
	}
	return metadataFromInfo(source, name, info)
}

func metadataFromInfo(source, name string, info fs.FileInfo) (Metadata, error) {
	m := Metadata{
		Path:     name,
		Source:   source,
		Created:  platform.CreatedTime(source, info),
		Modified: info.ModTime(),
		Mode:     info.Mode().Perm(),
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return Metadata{}, fmt.Errorf("%s: %w", source, ErrSymlink)
	case info.IsDir():
		m.Type = EntryFolder
	case info.Mode().IsRegular():
		m.Type = EntryFile
		m.Size = info.Size()
	default:
		return Metadata{}, fmt.Errorf("%s: %w", source, ErrNotRegular)
	}
	return m, nil
}

// archiveName returns the slash-separated name of path relative to base.
func archiveName(base, path string) (string, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", err
	}
	name := filepath.ToSlash(rel)
	if err := wire.ValidName(name); err != nil {
		return "", fmt.Errorf("archive name for %s: %w", path, err)
	}
	return name, nil
}
