//go:build windows

package fs

import (
	"io/fs"
	"syscall"
	"time"

	"da-go/internal/da"
)

func fileTimes(_ string, info fs.FileInfo) da.FileTimes {
	times := da.FileTimes{Mtime: info.ModTime(), Atime: info.ModTime()}
	if attr, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		times.Atime = time.Unix(0, attr.LastAccessTime.Nanoseconds())
		times.Birthtime = time.Unix(0, attr.CreationTime.Nanoseconds())
	}
	return times
}
