package stow

import (
	"errors"

	"github.com/meigma/stow/codec"
	"github.com/meigma/stow/internal/platform"
)

var (
	// ErrArchiveIO is returned when a container header cannot be read in
	// full or decodes to inconsistent data. Readers treat it as the end of
	// usable records in that container.
	ErrArchiveIO = errors.New("stow: archive format error")

	// ErrUnsupportedVersion is returned when a container carries an unknown
	// format version, which usually means it was written with another key.
	ErrUnsupportedVersion = errors.New("stow: unsupported container version")

	// ErrMissingContainer is returned when the next container of a
	// fragment chain cannot be found.
	ErrMissingContainer = errors.New("stow: missing container")

	// ErrBrokenChain is returned when the next container of a fragment
	// chain does not continue the file being extracted.
	ErrBrokenChain = errors.New("stow: broken fragment chain")

	// ErrContainerTooSmall is returned when a record header does not fit
	// even into a freshly rotated container.
	ErrContainerTooSmall = errors.New("stow: container too small")

	// ErrNoFilesRecovered is returned by View when a container header
	// parses but no record follows it.
	ErrNoFilesRecovered = errors.New("stow: no files recovered")

	// ErrNotFirstFragment is returned when extracting a continuation record
	// on its own.
	ErrNotFirstFragment = errors.New("stow: record is a continuation fragment")

	// ErrIndexOutOfRange is returned when a record index exceeds the
	// records of a container.
	ErrIndexOutOfRange = errors.New("stow: record index out of range")

	// ErrUnknownCodec is returned when no codec is registered under a name.
	ErrUnknownCodec = codec.ErrUnknownCodec

	// ErrSymlink is returned when a symlink is passed where a file is expected.
	ErrSymlink = platform.ErrSymlink

	// ErrNotRegular is returned when a source is not a regular file where
	// one is expected.
	ErrNotRegular = platform.ErrNotRegular
)
