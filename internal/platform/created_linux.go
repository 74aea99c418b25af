//go:build linux

package platform

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// CreatedTime returns the birth time of the file at path. Filesystems that
// do not record one fall back to the modification time in info.
func CreatedTime(path string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
