package da

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"da-go/internal/checksum"
	"da-go/internal/manifest"
)

// AccessionOptions tune an accession run.
type AccessionOptions struct {
	Algorithm  checksum.Algorithm
	Workers    int
	Collision  CollisionPolicy
	Originator string
	SkipHidden bool
}

// DefaultAccessionOptions returns MD5, one worker per CPU, overwrite on
// collision, hidden files included.
func DefaultAccessionOptions() AccessionOptions {
	return AccessionOptions{
		Algorithm:  checksum.Default,
		Workers:    runtime.NumCPU(),
		Collision:  CollisionOverwrite,
		Originator: manifest.DefaultOriginator,
	}
}

// AccessionResult is what an accession produced. On ErrAborted it holds
// the entries completed before the stop.
type AccessionResult struct {
	Manifest     *manifest.Manifest
	ManifestPath string
	// Warnings lists files that were skipped, in discovery order.
	Warnings []*FileError
	// Pruned lists source directories removed after a move.
	Pruned   []string
	Aborted  bool
	Escrowed bool
}

// Accessioner walks a source tree, relocates every file into the accession
// folder and builds the manifest from the relocated bytes.
type Accessioner struct {
	fsmgr     FilesystemManager
	preserver TimestampPreserver
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	opts      AccessionOptions
}

// NewAccessioner creates an Accessioner. A nil preserver disables extended
// timestamp preservation.
func NewAccessioner(fsmgr FilesystemManager, preserver TimestampPreserver, logger Logger, clock Clock, idgen IDGenerator, opts AccessionOptions) *Accessioner {
	if preserver == nil {
		preserver = NopTimestampPreserver{}
	}
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.Default
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Collision == "" {
		opts.Collision = CollisionOverwrite
	}
	return &Accessioner{
		fsmgr:     fsmgr,
		preserver: preserver,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
	}
}

// slot holds the outcome for the file at the same discovery index.
type slot struct {
	entry   *manifest.Entry
	warning *FileError
}

// Run performs the accession. Files are processed by a bounded worker pool
// and reassembled in discovery order. A file that cannot be read or
// relocated is skipped with a warning; a failure to write the destination
// stops the run and returns ErrAborted together with the partial result.
func (a *Accessioner) Run(ctx context.Context, acc Accession) (*AccessionResult, error) {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = a.clock.Now()
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	src, err := a.fsmgr.Resolve(acc.SourceRoot)
	if err != nil {
		return nil, &InputError{Field: "source root", Value: acc.SourceRoot, Err: err}
	}
	if !src.IsDir() {
		return nil, &InputError{Field: "source root", Value: acc.SourceRoot, Err: errors.New("not a directory")}
	}
	if err := a.fsmgr.MkdirAll(acc.DestinationRoot); err != nil {
		return nil, &InputError{Field: "destination root", Value: acc.DestinationRoot, Err: err}
	}

	unlock, err := a.fsmgr.Lock(acc.LockPath())
	if err != nil {
		return nil, &InputError{Field: "accession id", Value: acc.ID, Err: err}
	}
	defer func() {
		if err := unlock(); err != nil {
			a.logger.Warn("releasing accession lock", "path", acc.LockPath(), "error", err)
		}
	}()

	files, err := a.fsmgr.FindFiles(src, a.opts.SkipHidden)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", src.String(), err)
	}

	folder := acc.AccessionFolder()
	if err := a.fsmgr.MkdirAll(folder); err != nil {
		return nil, &InputError{Field: "destination root", Value: acc.DestinationRoot, Err: err}
	}

	a.logger.Info("accession started",
		"accession", acc.ID, "source", src.String(), "destination", folder,
		"mode", acc.Mode, "files", len(files), "algorithm", a.opts.Algorithm)

	// Keys are claimed in discovery order before any bytes move, so a file
	// whose key is already taken is skipped without touching either copy.
	slots := make([]slot, len(files))
	keys := make([]string, len(files))
	claimed := make(map[string]bool, len(files))
	for i, f := range files {
		key, ferr := relativeKey(src, f)
		if ferr == nil && claimed[key] {
			ferr = &FileError{Path: f.String(), Op: "relativize", Err: fmt.Errorf("%w: %s", manifest.ErrDuplicatePath, key)}
		}
		if ferr != nil {
			slots[i].warning = ferr
			continue
		}
		claimed[key] = true
		keys[i] = key
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		if slots[i].warning != nil {
			continue
		}
		i, f := i, f
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			entry, ferr := a.accessionFile(f, keys[i], folder, acc.Mode)
			if ferr != nil {
				if errors.Is(ferr, ErrDestinationWrite) {
					return ferr
				}
				slots[i].warning = ferr
				return nil
			}
			slots[i].entry = &entry
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	m := manifest.New(acc.ID, acc.CreatedAt)
	m.IngestNote = manifest.IngestNoteFor(acc.CreatedAt)
	m.Originator = a.opts.Originator
	result := &AccessionResult{Manifest: m}

	for i := range slots {
		s := slots[i]
		switch {
		case s.warning != nil:
			a.logger.Warn("file skipped", "accession", acc.ID, "path", s.warning.Path, "error", s.warning.Err)
			result.Warnings = append(result.Warnings, s.warning)
		case s.entry != nil:
			s.entry.PreservationID = a.idgen.New()
			if err := m.Add(*s.entry); err != nil {
				result.Warnings = append(result.Warnings, &FileError{Path: s.entry.RelativePath, Op: "record", Err: err})
			}
		}
	}

	// Pruning waits for every worker so no directory is removed while a
	// file is still being moved out of it.
	if acc.Mode == ModeMove {
		pruned, err := a.fsmgr.PruneEmptyDirs(src.String())
		if err != nil {
			a.logger.Warn("pruning source directories", "source", src.String(), "error", err)
		}
		result.Pruned = pruned
	}

	if runErr != nil {
		result.Aborted = true
		a.logger.Error("accession aborted", "accession", acc.ID, "completed", m.Len(), "files", len(files), "error", runErr)
		return result, fmt.Errorf("%w after %d of %d files: %w", ErrAborted, m.Len(), len(files), runErr)
	}

	a.logger.Info("accession finished",
		"accession", acc.ID, "entries", m.Len(), "skipped", len(result.Warnings), "bytes", m.TotalSize())
	return result, nil
}

// relativeKey returns the manifest key for f. Names the manifest cannot
// carry byte for byte are rejected here, before the file is relocated.
func relativeKey(srcRoot, f *Path) (string, *FileError) {
	rel, err := filepath.Rel(srcRoot.String(), f.String())
	if err != nil {
		return "", &FileError{Path: f.String(), Op: "relativize", Err: err}
	}
	canon, err := manifest.CanonicalPath(rel)
	if err != nil {
		return "", &FileError{Path: f.String(), Op: "relativize", Err: err}
	}
	return canon, nil
}

// accessionFile relocates one file to its claimed key and builds its entry
// from the bytes now at the destination. Errors are *FileError; ones that
// wrap ErrDestinationWrite stop the run.
func (a *Accessioner) accessionFile(f *Path, canon, folder string, mode RelocationMode) (manifest.Entry, *FileError) {
	dst := manifest.LocalPath(folder, canon)

	// Source timestamps come from the walk, before anything touched the file.
	times := a.fsmgr.Times(f)

	if _, err := a.fsmgr.Lstat(dst); err == nil {
		if a.opts.Collision == CollisionFail {
			return manifest.Entry{}, &FileError{Path: canon, Op: "relocate", Err: fmt.Errorf("%w: %s", ErrCollision, dst)}
		}
		a.logger.Warn("overwriting existing destination file", "path", dst)
	}

	alg := a.opts.Algorithm
	srcDigest, err := a.fsmgr.Relocate(f, dst, mode, alg)
	if err != nil {
		return manifest.Entry{}, &FileError{Path: canon, Op: string(mode), Err: err}
	}

	digest, size, err := checksum.SumFile(func() (io.ReadCloser, error) { return a.fsmgr.Open(dst) }, alg)
	if err != nil {
		// The file has already left the source in move mode, so an
		// unreadable destination cannot be skipped quietly.
		return manifest.Entry{}, &FileError{Path: canon, Op: "digest", Err: fmt.Errorf("%w: %w", ErrDestinationWrite, err)}
	}

	if !srcDigest.IsZero() && !srcDigest.Equal(digest) {
		if mode == ModeCopy {
			if err := a.fsmgr.Remove(dst); err != nil {
				a.logger.Warn("removing corrupt copy", "path", dst, "error", err)
			}
		}
		return manifest.Entry{}, &FileError{Path: canon, Op: "verify " + string(mode),
			Err: fmt.Errorf("destination digest %s does not match source digest %s", digest.Value, srcDigest.Value)}
	}

	if err := a.fsmgr.RestoreTimes(dst, times); err != nil {
		a.logger.Warn("restoring timestamps", "path", dst, "error", err)
	}
	if !times.Birthtime.IsZero() && !a.preserver.PreserveExtendedTimestamps(dst, times) {
		a.logger.Debug("creation time not preserved", "path", dst)
	}

	return manifest.Entry{
		RelativePath: canon,
		Size:         size,
		Digest:       digest,
		LastModified: times.Mtime,
	}, nil
}
