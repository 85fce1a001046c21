package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"da-go/internal/checksum"
	"da-go/internal/config"
	"da-go/internal/da"
	"da-go/internal/database"
	"da-go/internal/encryption"
	"da-go/internal/escrow"
	"da-go/internal/fs"
	"da-go/internal/manifest"
	"da-go/internal/vault"
)

// DAApp is the application layer between the CLI and da.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and escrows the register on Close.
type DAApp struct {
	cfg       *config.Config
	register  *database.SQLiteRegister
	escrow    *escrow.Escrow
	encryptor da.Encryptor
	fsmgr     da.FilesystemManager
	service   *da.Service
	logger    da.Logger
	op        *Operation
	logFile   *os.File
}

// NewDAApp creates a fully wired DAApp from the given config.
// operation identifies the CLI command being run (e.g. "accession", "fixity").
// The caller must call Close when done.
func NewDAApp(cfg *config.Config, operation string) (*DAApp, error) {
	return newDAApp(cfg, operation, os.Stderr)
}

func newDAApp(cfg *config.Config, operation string, stderr io.Writer) (*DAApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := serviceOptions(cfg)
	if err != nil {
		return nil, err
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, cfg.LogLevel, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &DAApp{
		cfg:     cfg,
		fsmgr:   fs.NewOSFilesystemManager(cfg.Filesystem.Ignore),
		logger:  logger,
		op:      NewOperation(operation),
		logFile: logFile,
	}
	if err := a.open(); err != nil {
		a.closeResources()
		return nil, err
	}

	// Interface fields stay nil, not typed-nil, when escrow is off.
	var manifestEscrow da.ManifestEscrow
	if a.escrow != nil {
		manifestEscrow = a.escrow
	}
	a.service = da.NewService(a.fsmgr, a.register, manifestEscrow, fs.NewTimestampPreserver(),
		logger, da.RealClock{}, da.UUIDGenerator{}, opts)
	return a, nil
}

// open connects the register, encryptor and escrow vault and checks that
// the local register is not older than its escrowed snapshot.
func (a *DAApp) open() error {
	reg, err := database.NewRegisterFromConfig(a.cfg.Database, a.cfg.HostID, a.logger)
	if err != nil {
		return fmt.Errorf("opening register: %w", err)
	}
	a.register = reg

	if err := reg.CheckMigrations(); err != nil {
		return fmt.Errorf("register schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	if len(a.cfg.Vaults) == 0 {
		a.logger.Debug("no vault configured, escrow disabled")
		return nil
	}
	if !enc.IsConfigured() {
		a.logger.Warn("escrow disabled: encryption keys are not set up", "hint", "run `da config keys`")
		return nil
	}

	v, err := vault.NewVaultFromConfig(a.cfg.Vaults[0])
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	a.escrow = escrow.New(v, enc, a.logger)

	remote, err := a.escrow.SnapshotVersion(a.cfg.HostID)
	if err != nil {
		return fmt.Errorf("checking escrowed register version: %w", err)
	}
	local, err := reg.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local register version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local register is behind its escrowed copy (local=%d, escrowed=%d): restore it from the vault or re-initialize", local, remote)
	}
	return nil
}

func serviceOptions(cfg *config.Config) (da.Options, error) {
	alg, err := checksum.ParseAlgorithm(cfg.Accession.Algorithm)
	if err != nil {
		return da.Options{}, err
	}
	acc := da.DefaultAccessionOptions()
	acc.Algorithm = alg
	if cfg.Accession.Workers > 0 {
		acc.Workers = cfg.Accession.Workers
	}
	if cfg.Accession.Collision != "" {
		acc.Collision = da.CollisionPolicy(cfg.Accession.Collision)
	}
	if cfg.Accession.Originator != "" {
		acc.Originator = cfg.Accession.Originator
	}
	acc.SkipHidden = cfg.Accession.SkipHidden
	return da.Options{Accession: acc, FixityWorkers: cfg.Fixity.Workers}, nil
}

// persistOperation saves the operation to the register, giving it an
// auto-increment ID. Only mutating commands call it.
func (a *DAApp) persistOperation(parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = NewOperation(a.op.Operation, parameters...).Parameters
	id, err := a.register.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// Accession copies or moves source into dest/id and writes dest/id.xml.
func (a *DAApp) Accession(ctx context.Context, source, dest, id string, mode da.RelocationMode) (*da.AccessionResult, error) {
	if err := a.persistOperation(id, string(mode), source, dest); err != nil {
		return nil, err
	}
	acc := da.Accession{ID: id, SourceRoot: source, DestinationRoot: dest, Mode: mode}
	res, err := a.service.Accession(ctx, acc)
	return res, a.op.Fail(err)
}

// Fixity verifies an accession and records the run in the register.
func (a *DAApp) Fixity(ctx context.Context, req da.FixityRequest) (*da.FixityResult, error) {
	target := req.ManifestPath
	if req.FromEscrow {
		target = "escrow:" + req.AccessionID
	}
	if err := a.persistOperation(target); err != nil {
		return nil, err
	}
	res, err := a.service.Fixity(ctx, req)
	return res, a.op.Fail(err)
}

// Status returns the register view of an accession.
func (a *DAApp) Status(accessionID string, runs int) (*da.AccessionStatus, error) {
	return a.service.Status(accessionID, runs)
}

// History returns the most recent mutating operations.
func (a *DAApp) History(limit int) ([]*da.OperationRecord, error) {
	return a.service.History(limit)
}

// EscrowEnabled reports whether manifests and the register are escrowed.
func (a *DAApp) EscrowEnabled() bool {
	return a.escrow != nil
}

// NeedsPassphrase reports whether Unlock requires the key passphrase.
func (a *DAApp) NeedsPassphrase() bool {
	_, ok := a.encryptor.(*encryption.AgeEncryptor)
	return ok
}

// Unlock opens the private key for reading escrowed data.
func (a *DAApp) Unlock(passphrase string) (da.DecryptionContext, error) {
	return a.encryptor.Unlock(passphrase)
}

// RetrieveManifest writes an escrowed manifest to w.
func (a *DAApp) RetrieveManifest(accessionID string, w io.Writer, decrypt da.DecryptionContext) error {
	return a.service.RetrieveManifest(accessionID, w, decrypt)
}

// ImportManifest rewrites a legacy manifest in the flat layout.
func (a *DAApp) ImportManifest(in, out string) (*manifest.Manifest, error) {
	return a.service.ImportManifest(in, out)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the
// register and escrows the snapshot with the operation ID as its version.
// For non-persisted operations: just closes the register.
func (a *DAApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		if err := a.register.FinishOperation(a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.escrow != nil {
			keep(a.escrowRegister())
		}
	}

	keep(a.closeResources())
	return firstErr
}

// escrowRegister snapshots the register to a temp file and deposits it.
func (a *DAApp) escrowRegister() error {
	tmp, err := os.CreateTemp("", "da-register-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for register snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.register.BackupTo(tmpPath); err != nil {
		return err
	}
	if err := a.escrow.DepositSnapshot(a.cfg.HostID, tmpPath, a.op.ID); err != nil {
		return fmt.Errorf("escrowing register: %w", err)
	}
	a.logger.Debug("register escrowed", "version", a.op.ID)
	return nil
}

func (a *DAApp) closeResources() error {
	var err error
	if a.register != nil {
		if cerr := a.register.Close(); cerr != nil {
			err = fmt.Errorf("closing register: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
