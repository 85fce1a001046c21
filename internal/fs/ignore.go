package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-source ignore file read from the source root.
const IgnoreFileName = ".daignore"

// defaultIgnorePatterns keep the ignore file itself out of every accession.
var defaultIgnorePatterns = []string{IgnoreFileName}

type ignoreRule struct {
	glob string
	// anchored rules contain a '/' and match the whole relative path;
	// the rest match the base name at any depth.
	anchored bool
	// dirOnly rules were written with a trailing '/'.
	dirOnly bool
}

// IgnoreMatcher decides which walked entries stay out of an accession.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles raw patterns. Blank lines and '#' comments are
// dropped. A trailing '/' restricts a pattern to directories.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		r := ignoreRule{}
		if strings.HasSuffix(raw, "/") {
			r.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		raw = strings.TrimPrefix(raw, "/")
		if raw == "" {
			continue
		}
		if _, err := path.Match(raw, ""); err != nil {
			continue
		}
		r.glob = raw
		r.anchored = strings.Contains(raw, "/")
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether the entry at relativePath (relative to the walk
// root, OS separators) is ignored.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	slashed := filepath.ToSlash(relativePath)
	base := path.Base(slashed)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchored {
			subject = slashed
		}
		if ok, _ := path.Match(r.glob, subject); ok {
			return true
		}
	}
	return false
}

// Len returns the number of usable rules.
func (m *IgnoreMatcher) Len() int { return len(m.rules) }

// ParseIgnoreFile reads one pattern per line. A missing file yields no
// patterns.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
