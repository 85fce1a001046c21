package da

import "time"

// OperationRecord is one mutating CLI command in the register.
type OperationRecord struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// AccessionRecord is the register's summary of a completed accession.
type AccessionRecord struct {
	AccessionID     string
	SourceRoot      string
	DestinationRoot string
	Mode            RelocationMode
	ManifestPath    string
	Algorithm       string
	FileCount       int
	TotalBytes      int64
	WarningCount    int
	Aborted         bool
	Escrowed        bool
	CreatedAt       time.Time
}

// FixityRunRecord is the register's summary of one verification run.
type FixityRunRecord struct {
	ID          string
	AccessionID string
	Root        string
	ReportPath  string
	LogPath     string
	Total       int
	OK          int
	Mismatch    int
	Missing     int
	Errors      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Register is the local SQLite record of what was accessioned and checked.
// Manifests stay authoritative; the register only indexes them.
type Register interface {
	// CreateOperation records the start of a mutating command and returns
	// its id, which is also the version of the escrowed register snapshot.
	CreateOperation(operation, parameters string) (int64, error)

	// FinishOperation marks an operation as finished with a status.
	FinishOperation(id int64, status string) error

	// MaxOperationID returns the highest operation id, or 0.
	MaxOperationID() (int64, error)

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*OperationRecord, error)

	// RecordAccession inserts or replaces the record for an accession id.
	RecordAccession(rec *AccessionRecord) error

	// FindAccession returns nil and no error when the id is unknown.
	FindAccession(accessionID string) (*AccessionRecord, error)

	// RecordFixityRun appends a verification run.
	RecordFixityRun(rec *FixityRunRecord) error

	// ListFixityRuns returns the most recent runs for an accession, newest first.
	ListFixityRuns(accessionID string, limit int) ([]*FixityRunRecord, error)

	// BackupTo writes a consistent snapshot of the register to path.
	BackupTo(path string) error

	// Close closes the database connection.
	Close() error
}
