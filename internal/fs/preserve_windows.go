//go:build windows

package fs

import (
	"golang.org/x/sys/windows"

	"da-go/internal/da"
)

// TimestampPreserver restores creation time on Windows.
type TimestampPreserver struct{}

// NewTimestampPreserver returns the platform's extended timestamp preserver.
func NewTimestampPreserver() *TimestampPreserver { return &TimestampPreserver{} }

// PreserveExtendedTimestamps sets creation, access and write time in one
// SetFileTime call. Any failure reports false.
func (*TimestampPreserver) PreserveExtendedTimestamps(path string, times da.FileTimes) bool {
	if times.Birthtime.IsZero() {
		return false
	}
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	h, err := windows.CreateFile(name, windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	ctime := windows.NsecToFiletime(times.Birthtime.UnixNano())
	atime := windows.NsecToFiletime(times.Atime.UnixNano())
	mtime := windows.NsecToFiletime(times.Mtime.UnixNano())
	return windows.SetFileTime(h, &ctime, &atime, &mtime) == nil
}

var _ da.TimestampPreserver = (*TimestampPreserver)(nil)
