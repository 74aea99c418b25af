//go:build unix

package platform

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// OpenSource opens the regular file at name for archiving and returns it
// with its metadata. The final path element is never followed: a symlink
// yields ErrSymlink. O_NONBLOCK keeps a FIFO swapped in after indexing
// from blocking the open; it is rejected by the mode check instead.
func OpenSource(name string) (*os.File, fs.FileInfo, error) {
	f, err := os.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, nil, &fs.PathError{Op: "open", Path: name, Err: ErrSymlink}
		}
		return nil, nil, err
	}
	return checkRegular(f)
}
