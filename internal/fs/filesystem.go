package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"da-go/internal/da"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignorePatterns []string
}

// NewOSFilesystemManager creates a filesystem manager that skips files
// matching ignorePatterns (see IgnoreMatcher) when walking a source tree.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignorePatterns: ignorePatterns}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*da.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return da.NewPath(absPath, info.IsDir(), info), nil
}

// FindFiles discovers regular files under root in lexical order.
// Symlinks and special files are not followed or returned. A directory
// that cannot be read fails the whole walk.
func (m *OSFilesystemManager) FindFiles(root *da.Path, skipHidden bool) ([]*da.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), m.ignorePatterns...), filePatterns...)
	matcher := NewIgnoreMatcher(patterns)

	var paths []*da.Path
	err = filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root.String() {
			return nil
		}
		rel, err := filepath.Rel(root.String(), p)
		if err != nil {
			return err
		}
		if (skipHidden && strings.HasPrefix(d.Name(), ".")) || matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Gone between readdir and stat; never seen, never recorded.
				return nil
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, da.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return paths, nil
}

// Open opens a file for reading without touching its access time when the
// platform allows it.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return openNoAtime(path)
}

// Lstat returns fresh file info without following symlinks.
func (m *OSFilesystemManager) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Times extracts access, modification and, where available, creation time.
func (m *OSFilesystemManager) Times(p *da.Path) da.FileTimes {
	return fileTimes(p.String(), p.Info())
}

// MkdirAll creates a directory and any missing parents.
func (m *OSFilesystemManager) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Remove deletes a single file.
func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

// RestoreTimes sets access and modification time.
func (m *OSFilesystemManager) RestoreTimes(path string, times da.FileTimes) error {
	atime := times.Atime
	if atime.IsZero() {
		atime = times.Mtime
	}
	return os.Chtimes(path, atime, times.Mtime)
}

// Lock takes an exclusive flock on path without waiting.
func (m *OSFilesystemManager) Lock(path string) (func() error, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another accession holds %s", path)
	}
	return fl.Unlock, nil
}

// Compile-time check that OSFilesystemManager implements da.FilesystemManager interface
var _ da.FilesystemManager = (*OSFilesystemManager)(nil)
