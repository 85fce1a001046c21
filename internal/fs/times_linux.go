//go:build linux

package fs

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"da-go/internal/da"
)

// fileTimes reads atime from the stat result and birth time through statx,
// which reports it only on filesystems that record it.
func fileTimes(path string, info fs.FileInfo) da.FileTimes {
	times := da.FileTimes{Mtime: info.ModTime(), Atime: info.ModTime()}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		times.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}

	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		times.Birthtime = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	return times
}
