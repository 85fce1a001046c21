package da

import (
	"errors"
	"fmt"
)

var (
	// ErrInput matches every *InputError.
	ErrInput = errors.New("invalid input")

	// ErrManifest matches every *ManifestError.
	ErrManifest = errors.New("unusable manifest")

	// ErrAborted is returned when an accession stopped early. The entries
	// completed before the stop are still in the returned manifest.
	ErrAborted = errors.New("accession aborted")

	// ErrCollision marks a file skipped because its destination existed
	// and the collision policy is "fail".
	ErrCollision = errors.New("destination file already exists")

	// ErrDestinationWrite marks a failure to write into the destination
	// tree. Unlike per-file source problems it stops the accession.
	ErrDestinationWrite = errors.New("destination write failed")

	// ErrNotInVault is returned by a Vault asked for an item it does not hold.
	ErrNotInVault = errors.New("not found in vault")
)

// InputError reports a bad source, destination or identifier. It is raised
// before any file is touched.
type InputError struct {
	Field string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InputError) Unwrap() []error { return []error{ErrInput, e.Err} }

// FileError is a problem with a single file. It never aborts a batch: the
// accessioner turns it into a warning and the verifier into an ERROR row.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ManifestError reports a manifest that is absent or cannot be parsed.
// A verification run that hits one writes nothing.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() []error { return []error{ErrManifest, e.Err} }
