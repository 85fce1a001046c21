package da

import (
	"io"
	"io/fs"
	"time"

	"da-go/internal/checksum"
)

// FileTimes are the timestamps carried across a relocation.
type FileTimes struct {
	Atime time.Time
	Mtime time.Time
	// Birthtime is zero when the platform or filesystem does not report it.
	Birthtime time.Time
}

// FilesystemManager abstracts the filesystem operations accessioning and
// verification need so both can be exercised against injected faults.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// FindFiles returns the regular files under root in lexical walk
	// order, which is the discovery order manifests preserve. Ignored
	// files are left out, as are dot-files and dot-directories when
	// skipHidden is set.
	FindFiles(root *Path, skipHidden bool) ([]*Path, error)

	// Open opens a file for reading without updating its access time
	// where the platform allows it.
	Open(path string) (io.ReadCloser, error)

	// Lstat returns fresh file info without following symlinks.
	Lstat(path string) (fs.FileInfo, error)

	// Times extracts the timestamps captured when p was discovered.
	Times(p *Path) FileTimes

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// Relocate moves or copies src to dst, creating dst's parent. When the
	// bytes were streamed, the digest of the source stream is returned;
	// a same-device move returns a zero digest. Failures to write into
	// the destination wrap ErrDestinationWrite.
	Relocate(src *Path, dst string, mode RelocationMode, alg checksum.Algorithm) (checksum.Digest, error)

	// Remove deletes a single file.
	Remove(path string) error

	// RestoreTimes sets access and modification time.
	RestoreTimes(path string, times FileTimes) error

	// PruneEmptyDirs removes empty directories below root, deepest first.
	// root itself is kept. Directories that are not empty or cannot be
	// removed are left alone. Returns the removed directories.
	PruneEmptyDirs(root string) ([]string, error)

	// Lock takes an exclusive advisory lock on path, failing immediately
	// if another process holds it. The returned func releases it.
	Lock(path string) (func() error, error)
}

// TimestampPreserver sets the timestamps a plain chtimes cannot, such as
// creation time. It reports whether it did so; false is never an error.
type TimestampPreserver interface {
	PreserveExtendedTimestamps(path string, times FileTimes) bool
}

// NopTimestampPreserver preserves nothing.
type NopTimestampPreserver struct{}

func (NopTimestampPreserver) PreserveExtendedTimestamps(string, FileTimes) bool { return false }
