package da

import "io/fs"

// Path is a resolved filesystem path with the stat info captured when it
// was resolved or discovered. Paths are created by FilesystemManager.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		isDir:   isDir,
		info:    info,
	}
}

// String returns the absolute path.
func (p *Path) String() string {
	return p.absPath
}

// IsDir reports whether the path is a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}

// Info returns the stat info cached at discovery time. Accessioning reads
// source timestamps from it, so it must be captured before relocation.
func (p *Path) Info() fs.FileInfo {
	return p.info
}
