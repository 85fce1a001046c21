package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"da-go/internal/da"
	"da-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRegister implements da.Register on SQLite.
type SQLiteRegister struct {
	db     *sql.DB
	path   string
	clock  da.Clock
	logger da.Logger
}

// NewSQLiteRegister opens the register at path (or ":memory:").
// The schema is not touched; call MigrateUp or CheckMigrations.
// A nil clock or logger falls back to the real clock and a NopLogger.
func NewSQLiteRegister(path string, clock da.Clock, logger da.Logger) (*SQLiteRegister, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	r := NewSQLiteRegisterFromDB(db, clock, logger)
	r.path = path
	return r, nil
}

// NewSQLiteRegisterFromDB wraps an open connection.
func NewSQLiteRegisterFromDB(db *sql.DB, clock da.Clock, logger da.Logger) *SQLiteRegister {
	if clock == nil {
		clock = da.RealClock{}
	}
	if logger == nil {
		logger = da.NewNopLogger()
	}
	return &SQLiteRegister{db: db, clock: clock, logger: logger}
}

// OpenConnection opens a SQLite database and applies the PRAGMAs the
// register relies on. path can be ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and every
	// connection to ":memory:" would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// MigrateUp brings the schema of db to the newest version.
func MigrateUp(db *sql.DB) error {
	return migrations.Up(db)
}

// Operations

func (s *SQLiteRegister) CreateOperation(operation, parameters string) (int64, error) {
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (started_at, operation, parameters) VALUES (?, ?, ?)`,
		s.clock.Now().UTC(), operation, parameters)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	return id, nil
}

func (s *SQLiteRegister) FinishOperation(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		s.clock.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteRegister) MaxOperationID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max operation id: %w", err)
	}
	return id, nil
}

func (s *SQLiteRegister) ListOperations(limit int) ([]*da.OperationRecord, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, operation, parameters, status, started_at, finished_at
		   FROM operations ORDER BY id DESC LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*da.OperationRecord
	for rows.Next() {
		op := &da.OperationRecord{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("listing operations: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Accessions

func (s *SQLiteRegister) RecordAccession(rec *da.AccessionRecord) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO accessions (
			accession_id, source_root, destination_root, mode, manifest_path, algorithm,
			file_count, total_bytes, warning_count, aborted, escrowed, created_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (accession_id) DO UPDATE SET
			source_root = excluded.source_root,
			destination_root = excluded.destination_root,
			mode = excluded.mode,
			manifest_path = excluded.manifest_path,
			algorithm = excluded.algorithm,
			file_count = excluded.file_count,
			total_bytes = excluded.total_bytes,
			warning_count = excluded.warning_count,
			aborted = excluded.aborted,
			escrowed = excluded.escrowed,
			created_at = excluded.created_at,
			recorded_at = excluded.recorded_at`,
		rec.AccessionID, rec.SourceRoot, rec.DestinationRoot, string(rec.Mode), rec.ManifestPath, rec.Algorithm,
		rec.FileCount, rec.TotalBytes, rec.WarningCount, rec.Aborted, rec.Escrowed,
		rec.CreatedAt.UTC(), s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording accession %s: %w", rec.AccessionID, err)
	}
	s.logger.Debug("accession recorded", "accession", rec.AccessionID, "files", rec.FileCount)
	return nil
}

func (s *SQLiteRegister) FindAccession(accessionID string) (*da.AccessionRecord, error) {
	rec := &da.AccessionRecord{}
	var mode string
	err := s.db.QueryRowContext(context.Background(), `
		SELECT accession_id, source_root, destination_root, mode, manifest_path, algorithm,
		       file_count, total_bytes, warning_count, aborted, escrowed, created_at
		  FROM accessions WHERE accession_id = ?`, accessionID).Scan(
		&rec.AccessionID, &rec.SourceRoot, &rec.DestinationRoot, &mode, &rec.ManifestPath, &rec.Algorithm,
		&rec.FileCount, &rec.TotalBytes, &rec.WarningCount, &rec.Aborted, &rec.Escrowed, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding accession %s: %w", accessionID, err)
	}
	rec.Mode = da.RelocationMode(mode)
	return rec, nil
}

// Fixity runs

func (s *SQLiteRegister) RecordFixityRun(rec *da.FixityRunRecord) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO fixity_runs (
			id, accession_id, root, report_path, log_path,
			total, ok, mismatch, missing, errors, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccessionID, rec.Root, rec.ReportPath, rec.LogPath,
		rec.Total, rec.OK, rec.Mismatch, rec.Missing, rec.Errors,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording fixity run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteRegister) ListFixityRuns(accessionID string, limit int) ([]*da.FixityRunRecord, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, accession_id, root, report_path, log_path,
		       total, ok, mismatch, missing, errors, started_at, finished_at
		  FROM fixity_runs WHERE accession_id = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, accessionID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("listing fixity runs: %w", err)
	}
	defer rows.Close()

	var runs []*da.FixityRunRecord
	for rows.Next() {
		r := &da.FixityRunRecord{}
		if err := rows.Scan(&r.ID, &r.AccessionID, &r.Root, &r.ReportPath, &r.LogPath,
			&r.Total, &r.OK, &r.Mismatch, &r.Missing, &r.Errors, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("listing fixity runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing fixity runs: %w", err)
	}
	return runs, nil
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteRegister) Path() string {
	return s.path
}

// CheckMigrations verifies the schema is at the version this binary expects.
func (s *SQLiteRegister) CheckMigrations() error {
	return migrations.Check(s.db)
}

// MigrateUp applies pending migrations.
func (s *SQLiteRegister) MigrateUp() error {
	return migrations.Up(s.db)
}

// BackupTo writes a consistent copy of the register to destPath using
// VACUUM INTO. destPath must not exist or must be empty.
func (s *SQLiteRegister) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up register: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteRegister) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteRegister implements da.Register
var _ da.Register = (*SQLiteRegister)(nil)

