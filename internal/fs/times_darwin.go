//go:build darwin

package fs

import (
	"io/fs"
	"syscall"
	"time"

	"da-go/internal/da"
)

func fileTimes(_ string, info fs.FileInfo) da.FileTimes {
	times := da.FileTimes{Mtime: info.ModTime(), Atime: info.ModTime()}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		times.Atime = time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)
		times.Birthtime = time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
	}
	return times
}
