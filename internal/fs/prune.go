package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// PruneEmptyDirs removes empty directories below root, children before
// parents, so a directory emptied by removing its children goes too.
// root itself is kept. Removal failures are not errors: a directory that
// still holds files or cannot be removed simply stays.
func (m *OSFilesystemManager) PruneEmptyDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			// Unreadable subtree: leave it in place.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir visits parents first; reversed, every child precedes its parent.
	slices.Reverse(dirs)

	var removed []string
	for _, dir := range dirs {
		if os.Remove(dir) == nil {
			removed = append(removed, dir)
		}
	}
	return removed, nil
}
