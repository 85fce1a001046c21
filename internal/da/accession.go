package da

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RelocationMode selects whether source files are moved or copied.
type RelocationMode string

const (
	ModeCopy RelocationMode = "copy"
	ModeMove RelocationMode = "move"
)

// ParseMode maps a flag value to a RelocationMode.
func ParseMode(s string) (RelocationMode, error) {
	switch m := RelocationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCopy, ModeMove:
		return m, nil
	default:
		return "", fmt.Errorf("unknown relocation mode %q", s)
	}
}

// CollisionPolicy decides what happens when a destination file exists.
type CollisionPolicy string

const (
	// CollisionOverwrite replaces the existing file. Last writer wins.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionFail leaves the existing file alone and skips the source
	// file with a warning.
	CollisionFail CollisionPolicy = "fail"
)

// accessionIDPattern admits ids that are a single portable path segment.
// No separators, no leading dot and no trailing dot.
var accessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,126}[A-Za-z0-9_-])?$`)

// windowsReservedNames cannot be used as a file or directory name on
// Windows, with or without an extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"CONIN$": true, "CONOUT$": true,
	"COM0": true, "COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT0": true, "LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Accession is one pipeline invocation. It is built once and not changed.
type Accession struct {
	ID              string
	SourceRoot      string
	DestinationRoot string
	Mode            RelocationMode
	CreatedAt       time.Time
}

// AccessionFolder is where relocated files land: DestinationRoot/ID.
func (a Accession) AccessionFolder() string {
	return filepath.Join(a.DestinationRoot, a.ID)
}

// ManifestPath is where the manifest document is written: DestinationRoot/ID.xml.
func (a Accession) ManifestPath() string {
	return ManifestPathFor(a.DestinationRoot, a.ID)
}

// LockPath is the lock file guarding concurrent runs of the same accession.
func (a Accession) LockPath() string {
	return filepath.Join(a.DestinationRoot, "."+a.ID+".lock")
}

// ManifestPathFor returns the manifest location for an accession id.
func ManifestPathFor(destinationRoot, id string) string {
	return filepath.Join(destinationRoot, id+".xml")
}

// ValidateAccessionID checks that id can be used verbatim as a path segment
// on every supported platform.
func ValidateAccessionID(id string) error {
	err := validation.Validate(id,
		validation.Required.Error("must not be empty"),
		validation.Match(accessionIDPattern).Error("must be 1-128 letters, digits, '.', '_' or '-', starting with a letter or digit and not ending with '.'"),
		validation.By(notReservedName),
	)
	if err != nil {
		return &InputError{Field: "accession id", Value: id, Err: err}
	}
	return nil
}

func notReservedName(value any) error {
	s, _ := value.(string)
	base := strings.ToUpper(s)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if windowsReservedNames[base] {
		return errors.New("is a reserved device name")
	}
	return nil
}

// Validate checks the accession's fields without touching the filesystem.
// Existence of the source is checked by the accessioner.
func (a Accession) Validate() error {
	if err := ValidateAccessionID(a.ID); err != nil {
		return err
	}
	if err := validation.Validate(a.SourceRoot, validation.Required.Error("must not be empty")); err != nil {
		return &InputError{Field: "source root", Err: err}
	}
	if err := validation.Validate(a.DestinationRoot, validation.Required.Error("must not be empty")); err != nil {
		return &InputError{Field: "destination root", Err: err}
	}
	if err := validation.Validate(a.Mode,
		validation.Required.Error("must be copy or move"),
		validation.In(ModeCopy, ModeMove).Error("must be copy or move"),
	); err != nil {
		return &InputError{Field: "relocation mode", Value: string(a.Mode), Err: err}
	}

	src, err := filepath.Abs(a.SourceRoot)
	if err != nil {
		return &InputError{Field: "source root", Value: a.SourceRoot, Err: err}
	}
	dst, err := filepath.Abs(a.AccessionFolder())
	if err != nil {
		return &InputError{Field: "destination root", Value: a.DestinationRoot, Err: err}
	}
	if within(dst, src) {
		return &InputError{Field: "destination root", Value: a.DestinationRoot, Err: fmt.Errorf("accession folder %s is inside the source", dst)}
	}
	if within(src, dst) {
		return &InputError{Field: "source root", Value: a.SourceRoot, Err: fmt.Errorf("source is inside the accession folder %s", dst)}
	}
	return nil
}

// within reports whether p is base or below it.
func within(p, base string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
