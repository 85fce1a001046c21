package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"da-go/internal/checksum"
)

var csvHeader = []string{"file_path", "stored_digest", "computed_digest", "status", "error"}

// WriteCSV writes one row per result under a fixed header. No run
// timestamps go into the rows, so re-running against an unchanged tree
// produces identical output.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, res := range r.Results {
		row := []string{
			res.FilePath,
			res.StoredDigest.Value,
			res.ComputedDigest.Value,
			string(res.Status),
			res.ErrorDetail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing report row for %s: %w", res.FilePath, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}

// WriteCSVFile writes the report to path through a temp file and rename.
func WriteCSVFile(path string, r *Report) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	tmpPath := tmp.Name()

	if err := WriteCSV(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting report permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming report into place: %w", err)
	}
	return nil
}

// ReadCSV parses a report written by WriteCSV. Digests carry no algorithm
// in the report, so alg is applied to both digest columns.
func ReadCSV(rd io.Reader, alg checksum.Algorithm) ([]Result, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("report is empty")
		}
		return nil, fmt.Errorf("reading report header: %w", err)
	}
	if !slices.Equal(header, csvHeader) {
		return nil, fmt.Errorf("unexpected report header %v", header)
	}

	var results []Result
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading report row: %w", err)
		}
		status, err := ParseStatus(row[3])
		if err != nil {
			return nil, fmt.Errorf("report row for %s: %w", row[0], err)
		}
		res := Result{
			FilePath:    row[0],
			Status:      status,
			ErrorDetail: row[4],
		}
		if row[1] != "" {
			res.StoredDigest = checksum.Digest{Algorithm: alg, Value: row[1]}
		}
		if row[2] != "" {
			res.ComputedDigest = checksum.Digest{Algorithm: alg, Value: row[2]}
		}
		results = append(results, res)
	}
	return results, nil
}
