package manifest

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"da-go/internal/checksum"
)

var (
	// ErrDuplicatePath is returned when two entries share a relative path.
	ErrDuplicatePath = errors.New("duplicate relative path")

	// ErrInvalidPath is returned for empty, absolute or escaping paths.
	ErrInvalidPath = errors.New("invalid relative path")
)

// Entry is one file captured at accession time.
type Entry struct {
	// RelativePath is slash-separated and relative to the accession root.
	// It is the unique key of the entry.
	RelativePath   string
	Size           int64
	Digest         checksum.Digest
	LastModified   time.Time
	PreservationID string
}

// OriginalName returns the file's base name as it was at the source.
func (e Entry) OriginalName() string {
	return path.Base(e.RelativePath)
}

// Manifest is the ordered inventory of an accession. Entries keep the order
// in which they were added, which is the order the source tree was walked.
type Manifest struct {
	AccessionID string
	IngestNote  string
	CreatedAt   time.Time
	// Originator is recorded as the PREMIS messageDigestOriginator.
	Originator string

	entries []Entry
	index   map[string]int
}

// New creates an empty manifest for an accession.
func New(accessionID string, createdAt time.Time) *Manifest {
	return &Manifest{
		AccessionID: accessionID,
		CreatedAt:   createdAt,
		index:       make(map[string]int),
	}
}

// IngestNoteFor renders the standard ingest note for a transfer time.
func IngestNoteFor(t time.Time) string {
	return "Transferred on " + t.UTC().Format(time.RFC3339)
}

// Add appends an entry. The relative path is canonicalised first; a path
// that is already present is rejected so entries stay unique.
func (m *Manifest) Add(e Entry) error {
	rel, err := CanonicalPath(e.RelativePath)
	if err != nil {
		return err
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if _, ok := m.index[rel]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, rel)
	}
	e.RelativePath = rel
	if !e.LastModified.IsZero() {
		e.LastModified = e.LastModified.UTC()
	}
	m.index[rel] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the entries in manifest order.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Entry returns the i-th entry.
func (m *Manifest) Entry(i int) Entry {
	return m.entries[i]
}

// Lookup finds an entry by relative path.
func (m *Manifest) Lookup(rel string) (Entry, bool) {
	canon, err := CanonicalPath(rel)
	if err != nil {
		return Entry{}, false
	}
	i, ok := m.index[canon]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// TotalSize returns the sum of all entry sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.entries {
		total += e.Size
	}
	return total
}

// Algorithms returns the distinct digest algorithms used, in first-seen order.
func (m *Manifest) Algorithms() []checksum.Algorithm {
	seen := make(map[checksum.Algorithm]bool)
	var algs []checksum.Algorithm
	for _, e := range m.entries {
		if !seen[e.Digest.Algorithm] {
			seen[e.Digest.Algorithm] = true
			algs = append(algs, e.Digest.Algorithm)
		}
	}
	return algs
}

// CanonicalPath normalises a relative path to forward slashes and rejects
// anything that would resolve outside the accession root. Only the host's
// separator is converted: on POSIX hosts a backslash is part of a name.
// Paths that are not valid UTF-8 or hold characters XML 1.0 cannot carry
// are rejected, since the manifest could not name them.
func CanonicalPath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if err := checkEncodable(rel); err != nil {
		return "", err
	}
	slashed := filepath.ToSlash(rel)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(rel) || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, rel)
	}
	clean := path.Clean(slashed)
	if clean == "." {
		return "", fmt.Errorf("%w: %q names the root", ErrInvalidPath, rel)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, rel)
	}
	return clean, nil
}

// LocalPath joins a canonical relative path onto a root using the host's
// separator.
func LocalPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// legacyPath converts the backslash separators of documents written on
// Windows hosts by earlier tools.
func legacyPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func checkEncodable(p string) error {
	if !utf8.ValidString(p) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidPath, p)
	}
	for _, r := range p {
		if !isXMLChar(r) {
			return fmt.Errorf("%w: %q holds character %U", ErrInvalidPath, p, r)
		}
	}
	return nil
}

// isXMLChar reports whether r is in the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
