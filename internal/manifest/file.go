package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ImportLegacy reads a manifest in any historical layout, including the
// nested folder layout where paths are rebuilt from folder ancestry, and
// returns it as a flat manifest ready to be re-encoded.
func ImportLegacy(r io.Reader) (*Manifest, error) {
	m, err := decode(r, true)
	if err != nil {
		return nil, err
	}
	if m.Originator == "" {
		m.Originator = DefaultOriginator
	}
	return m, nil
}

// ReadFile loads a flat manifest document from disk.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// WriteFile encodes m to path atomically. A crash mid-write leaves either
// the previous document or none, never a truncated one.
func WriteFile(path string, m *Manifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	if err := Encode(w, m); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}
