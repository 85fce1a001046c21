//go:build !linux && !darwin && !windows

package fs

import (
	"io/fs"

	"da-go/internal/da"
)

// fileTimes falls back to the modification time where the platform's stat
// layout is not handled.
func fileTimes(_ string, info fs.FileInfo) da.FileTimes {
	return da.FileTimes{Mtime: info.ModTime(), Atime: info.ModTime()}
}
