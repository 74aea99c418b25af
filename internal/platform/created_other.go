//go:build !linux

package platform

import (
	"io/fs"
	"time"
)

// CreatedTime returns the modification time in info; birth times are
// only read on Linux.
func CreatedTime(_ string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
