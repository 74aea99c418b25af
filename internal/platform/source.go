// Package platform holds the OS-specific parts of reading source files.
package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrSymlink is returned when a source path is a symbolic link.
	ErrSymlink = errors.New("symbolic links not supported")

	// ErrNotRegular is returned when a source path is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
)

// checkRegular stats an opened source and closes it unless it is a
// regular file.
func checkRegular(f *os.File) (*os.File, fs.FileInfo, error) {
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("%s: %w (%s)", f.Name(), ErrNotRegular, info.Mode().Type())
	}
	return f, info, nil
}
