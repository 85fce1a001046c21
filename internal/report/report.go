package report

import (
	"fmt"
	"path/filepath"
	"time"

	"da-go/internal/checksum"
)

// Status classifies one manifest entry after verification.
type Status string

const (
	StatusOK       Status = "OK"
	StatusMismatch Status = "MISMATCH"
	StatusMissing  Status = "MISSING"
	StatusError    Status = "ERROR"
)

// ParseStatus maps a report column back to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOK, StatusMismatch, StatusMissing, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Result is the outcome for a single manifest entry.
type Result struct {
	RelativePath   string
	FilePath       string
	StoredDigest   checksum.Digest
	ComputedDigest checksum.Digest
	Status         Status
	// ErrorDetail is set only for StatusError.
	ErrorDetail string
}

// Report holds one result per manifest entry, in manifest order.
type Report struct {
	AccessionID string
	Root        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []Result
}

// Summary counts results by status.
type Summary struct {
	Total    int
	OK       int
	Mismatch int
	Missing  int
	Error    int
}

// Clean reports whether every entry verified OK.
func (s Summary) Clean() bool {
	return s.Total == s.OK
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files: %d ok, %d mismatch, %d missing, %d error", s.Total, s.OK, s.Mismatch, s.Missing, s.Error)
}

// Summary tallies the report.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusOK:
			s.OK++
		case StatusMismatch:
			s.Mismatch++
		case StatusMissing:
			s.Missing++
		case StatusError:
			s.Error++
		}
	}
	return s
}

// Failures returns every result that is not OK, in report order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status != StatusOK {
			out = append(out, res)
		}
	}
	return out
}

// Paths names the two artifacts of a fixity run.
type Paths struct {
	CSV string
	Log string
}

// ReportPaths returns the report and activity log locations for an
// accession inside dir.
func ReportPaths(dir, accessionID string) Paths {
	return Paths{
		CSV: filepath.Join(dir, "fixity_"+accessionID+".csv"),
		Log: filepath.Join(dir, "fixity_"+accessionID+".log"),
	}
}
