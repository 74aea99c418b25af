//go:build !unix

package platform

import (
	"io/fs"
	"os"
)

// OpenSource opens the regular file at name for archiving and returns it
// with its metadata. Symlinks are detected with Lstat before opening and
// yield ErrSymlink.
func OpenSource(name string) (*os.File, fs.FileInfo, error) {
	info, err := os.Lstat(name)
	if err != nil {
		return nil, nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, nil, &fs.PathError{Op: "open", Path: name, Err: ErrSymlink}
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return checkRegular(f)
}
