package testutil

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"da-go/internal/checksum"
	"da-go/internal/da"
	"da-go/internal/fs"
)

// FaultyFilesystem is the real filesystem with failures injected by base
// name. It lets tests reproduce vanished sources, unreadable files and a
// full destination without special mounts.
type FaultyFilesystem struct {
	*fs.OSFilesystemManager

	mu sync.Mutex
	// OpenErr fails Open for matching files with the given error.
	OpenErr map[string]error
	// RelocateErr fails Relocate for matching sources.
	RelocateErr map[string]error
	// BeforeRelocate runs ahead of each relocation, e.g. to delete the
	// source underneath the accessioner.
	BeforeRelocate func(src string)

	relocated []string
}

// NewFaultyFilesystem wraps a fresh OSFilesystemManager.
func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{
		OSFilesystemManager: fs.NewOSFilesystemManager(nil),
		OpenErr:             map[string]error{},
		RelocateErr:         map[string]error{},
	}
}

func (f *FaultyFilesystem) Open(path string) (io.ReadCloser, error) {
	if err := f.OpenErr[filepath.Base(path)]; err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f.OSFilesystemManager.Open(path)
}

func (f *FaultyFilesystem) Relocate(src *da.Path, dst string, mode da.RelocationMode, alg checksum.Algorithm) (checksum.Digest, error) {
	if f.BeforeRelocate != nil {
		f.BeforeRelocate(src.String())
	}
	if err := f.RelocateErr[filepath.Base(src.String())]; err != nil {
		return checksum.Digest{}, err
	}
	d, err := f.OSFilesystemManager.Relocate(src, dst, mode, alg)
	if err == nil {
		f.mu.Lock()
		f.relocated = append(f.relocated, src.String())
		f.mu.Unlock()
	}
	return d, err
}

// Relocated returns the sources relocated so far, in completion order.
func (f *FaultyFilesystem) Relocated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.relocated...)
}

var _ da.FilesystemManager = (*FaultyFilesystem)(nil)
