package da

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"da-go/internal/manifest"
	"da-go/internal/report"
)

// Options configure the Service.
type Options struct {
	Accession     AccessionOptions
	FixityWorkers int
}

// Service coordinates accessioning, verification, the register and the
// escrow vault for the CLI.
type Service struct {
	fsmgr       FilesystemManager
	register    Register
	escrow      ManifestEscrow
	accessioner *Accessioner
	verifier    *Verifier
	logger      Logger
	clock       Clock
	idgen       IDGenerator
}

// NewService creates a service. register and escrow may be nil, in which
// case nothing is recorded or escrowed.
func NewService(fsmgr FilesystemManager, register Register, escrow ManifestEscrow, preserver TimestampPreserver, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	return &Service{
		fsmgr:       fsmgr,
		register:    register,
		escrow:      escrow,
		accessioner: NewAccessioner(fsmgr, preserver, logger, clock, idgen, opts.Accession),
		verifier:    NewVerifier(fsmgr, logger, opts.FixityWorkers),
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
	}
}

// Accession runs an accession and writes its manifest to
// DestinationRoot/ID.xml. An aborted run still writes the manifest of the
// files it completed before returning the ErrAborted error.
func (s *Service) Accession(ctx context.Context, acc Accession) (*AccessionResult, error) {
	res, runErr := s.accessioner.Run(ctx, acc)
	if res == nil {
		return nil, runErr
	}

	path := acc.ManifestPath()
	if err := manifest.WriteFile(path, res.Manifest); err != nil {
		return res, errors.Join(runErr, fmt.Errorf("writing manifest: %w", err))
	}
	res.ManifestPath = path
	s.logger.Info("manifest written", "accession", acc.ID, "path", path, "entries", res.Manifest.Len())

	if s.escrow != nil {
		if err := s.depositManifest(acc.ID, path); err != nil {
			s.logger.Warn("escrowing manifest", "accession", acc.ID, "error", err)
		} else {
			res.Escrowed = true
		}
	}

	if s.register != nil {
		rec := &AccessionRecord{
			AccessionID:     acc.ID,
			SourceRoot:      absOrRaw(acc.SourceRoot),
			DestinationRoot: absOrRaw(acc.DestinationRoot),
			Mode:            acc.Mode,
			ManifestPath:    absOrRaw(path),
			Algorithm:       string(s.accessioner.opts.Algorithm),
			FileCount:       res.Manifest.Len(),
			TotalBytes:      res.Manifest.TotalSize(),
			WarningCount:    len(res.Warnings),
			Aborted:         res.Aborted,
			Escrowed:        res.Escrowed,
			CreatedAt:       res.Manifest.CreatedAt,
		}
		if err := s.register.RecordAccession(rec); err != nil {
			return res, errors.Join(runErr, fmt.Errorf("recording accession: %w", err))
		}
	}

	return res, runErr
}

func (s *Service) depositManifest(accessionID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening manifest for escrow: %w", err)
	}
	defer f.Close()
	return s.escrow.Deposit(accessionID, f)
}

// FixityRequest names the manifest to verify and where to look and write.
type FixityRequest struct {
	// ManifestPath is the manifest document on disk. Ignored with FromEscrow.
	ManifestPath string
	// AccessionID selects the escrowed manifest when FromEscrow is set.
	AccessionID string
	FromEscrow  bool
	Decrypt     DecryptionContext

	// Root overrides the accession folder. Defaults to the folder named
	// after the accession next to the manifest.
	Root string
	// SourceRoot is the fallback tree when the accession folder is gone.
	// Defaults to the source recorded in the register.
	SourceRoot string
	// OutDir receives fixity_<id>.csv and fixity_<id>.log. Defaults to the
	// manifest's directory.
	OutDir string
}

// FixityResult is the outcome of a verification run.
type FixityResult struct {
	RunID    string
	Manifest *manifest.Manifest
	Report   *report.Report
	Paths    report.Paths
}

// Fixity verifies an accession. A manifest that cannot be loaded fails the
// run before any report or log file is created.
func (s *Service) Fixity(ctx context.Context, req FixityRequest) (*FixityResult, error) {
	m, err := s.loadManifest(req)
	if err != nil {
		return nil, err
	}

	var rec *AccessionRecord
	if s.register != nil {
		rec, err = s.register.FindAccession(m.AccessionID)
		if err != nil {
			s.logger.Warn("looking up accession", "accession", m.AccessionID, "error", err)
			rec = nil
		}
	}

	baseDir := ""
	switch {
	case !req.FromEscrow:
		baseDir = filepath.Dir(req.ManifestPath)
	case rec != nil:
		baseDir = rec.DestinationRoot
	}

	folder := req.Root
	if folder == "" && baseDir != "" {
		folder = filepath.Join(baseDir, m.AccessionID)
	}
	sourceRoot := req.SourceRoot
	if sourceRoot == "" && rec != nil {
		sourceRoot = rec.SourceRoot
	}
	root, err := ResolveRoot(s.fsmgr, folder, sourceRoot)
	if err != nil {
		return nil, err
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = baseDir
	}
	if outDir == "" {
		return nil, &InputError{Field: "output directory", Err: errors.New("required when the manifest comes from escrow and the accession is not in the register")}
	}
	if err := s.fsmgr.MkdirAll(outDir); err != nil {
		return nil, &InputError{Field: "output directory", Value: outDir, Err: err}
	}
	paths := report.ReportPaths(outDir, m.AccessionID)

	startedAt := s.clock.Now()
	activity, err := report.OpenActivityLog(paths.Log, m.AccessionID, startedAt)
	if err != nil {
		return nil, err
	}
	defer activity.Close()

	rep, verifyErr := s.verifier.Verify(ctx, m, root, activity)
	if rep == nil {
		if err := activity.Discard(); err != nil {
			s.logger.Warn("discarding activity log", "path", paths.Log, "error", err)
		}
		return nil, verifyErr
	}
	rep.StartedAt = startedAt
	rep.FinishedAt = s.clock.Now()

	if err := activity.Close(); err != nil && verifyErr == nil {
		verifyErr = err
	}
	if err := report.WriteCSVFile(paths.CSV, rep); err != nil {
		return nil, errors.Join(verifyErr, fmt.Errorf("writing report: %w", err))
	}

	result := &FixityResult{RunID: s.idgen.New(), Manifest: m, Report: rep, Paths: paths}

	if s.register != nil {
		sum := rep.Summary()
		run := &FixityRunRecord{
			ID:          result.RunID,
			AccessionID: m.AccessionID,
			Root:        root,
			ReportPath:  absOrRaw(paths.CSV),
			LogPath:     absOrRaw(paths.Log),
			Total:       sum.Total,
			OK:          sum.OK,
			Mismatch:    sum.Mismatch,
			Missing:     sum.Missing,
			Errors:      sum.Error,
			StartedAt:   rep.StartedAt,
			FinishedAt:  rep.FinishedAt,
		}
		if err := s.register.RecordFixityRun(run); err != nil {
			return result, errors.Join(verifyErr, fmt.Errorf("recording fixity run: %w", err))
		}
	}

	return result, verifyErr
}

// loadManifest reads the manifest for a fixity run. Every failure is a
// *ManifestError.
func (s *Service) loadManifest(req FixityRequest) (*manifest.Manifest, error) {
	var (
		m      *manifest.Manifest
		err    error
		source = req.ManifestPath
	)
	if req.FromEscrow {
		source = "escrow:" + req.AccessionID
		if s.escrow == nil {
			return nil, &ManifestError{Path: source, Err: errors.New("no escrow vault configured")}
		}
		var buf bytes.Buffer
		if err := s.escrow.Retrieve(req.AccessionID, &buf, req.Decrypt); err != nil {
			return nil, &ManifestError{Path: source, Err: err}
		}
		m, err = manifest.Decode(&buf)
	} else {
		if req.ManifestPath == "" {
			return nil, &ManifestError{Err: errors.New("no manifest given")}
		}
		m, err = manifest.ReadFile(req.ManifestPath)
	}
	if err != nil {
		return nil, &ManifestError{Path: source, Err: err}
	}
	// The accession number names the report files, so it has to be a safe
	// path segment no matter who wrote the document.
	if err := ValidateAccessionID(m.AccessionID); err != nil {
		return nil, &ManifestError{Path: source, Err: err}
	}
	return m, nil
}

// AccessionStatus is the register's view of one accession.
type AccessionStatus struct {
	Accession *AccessionRecord
	Runs      []*FixityRunRecord
}

// Status returns the register record and recent fixity runs for an accession.
func (s *Service) Status(accessionID string, runs int) (*AccessionStatus, error) {
	if s.register == nil {
		return nil, errors.New("no register configured")
	}
	rec, err := s.register.FindAccession(accessionID)
	if err != nil {
		return nil, fmt.Errorf("finding accession: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("accession %s is not in the register", accessionID)
	}
	list, err := s.register.ListFixityRuns(accessionID, runs)
	if err != nil {
		return nil, fmt.Errorf("listing fixity runs: %w", err)
	}
	return &AccessionStatus{Accession: rec, Runs: list}, nil
}

// History returns the most recent mutating operations.
func (s *Service) History(limit int) ([]*OperationRecord, error) {
	if s.register == nil {
		return nil, errors.New("no register configured")
	}
	s.logger.Debug("fetching history", "limit", limit)
	return s.register.ListOperations(limit)
}

// RetrieveManifest writes the escrowed manifest of an accession to w.
func (s *Service) RetrieveManifest(accessionID string, w io.Writer, decrypt DecryptionContext) error {
	if s.escrow == nil {
		return errors.New("no escrow vault configured")
	}
	if err := ValidateAccessionID(accessionID); err != nil {
		return err
	}
	if err := s.escrow.Retrieve(accessionID, w, decrypt); err != nil {
		return fmt.Errorf("retrieving manifest for %s: %w", accessionID, err)
	}
	return nil
}

// ImportManifest converts a manifest in a historical layout into the flat
// layout and writes it to out.
func (s *Service) ImportManifest(in, out string) (*manifest.Manifest, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, &ManifestError{Path: in, Err: err}
	}
	defer f.Close()

	m, err := manifest.ImportLegacy(f)
	if err != nil {
		return nil, &ManifestError{Path: in, Err: err}
	}
	if err := ValidateAccessionID(m.AccessionID); err != nil {
		return nil, &ManifestError{Path: in, Err: err}
	}
	if err := manifest.WriteFile(out, m); err != nil {
		return nil, err
	}
	s.logger.Info("manifest imported", "from", in, "to", out, "entries", m.Len())
	return m, nil
}

func absOrRaw(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
