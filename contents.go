package stow

import (
	"io/fs"
	"time"
)

// FileContents describes one record of a container as listed by View.
type FileContents struct {
	// Index is the position of the record in its container, from 0.
	Index int

	// Fragment is the record's position in its file's chain; 1 is the first.
	Fragment int64

	Type     EntryType
	Name     string
	Created  time.Time
	Modified time.Time
	Mode     fs.FileMode

	// Remaining is the number of content bytes of the file not yet
	// written when this record was started.
	Remaining int64

	// Stored is the number of content bytes this record holds.
	Stored int64
}

// Fragmented reports whether the file continues in a later container.
func (f *FileContents) Fragmented() bool {
	return f.Type == EntryFile && f.Stored < f.Remaining
}

// Continuation reports whether the record continues a file started in an
// earlier container.
func (f *FileContents) Continuation() bool {
	return f.Fragment > 1
}

// ArchiveContents is the parsed listing of one container.
type ArchiveContents struct {
	Path    string
	ID      ArchiveID
	Version byte
	Files   []FileContents
}
