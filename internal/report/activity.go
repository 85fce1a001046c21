package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Recorder receives results as verification completes them.
type Recorder interface {
	Record(Result) error
}

// NopRecorder discards results.
type NopRecorder struct{}

func (NopRecorder) Record(Result) error { return nil }

// ActivityLog is the plain-text log of a single fixity run. It is opened
// fresh for the run and owned by it; nothing else writes to the file.
type ActivityLog struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// OpenActivityLog truncates path and writes the run header line.
func OpenActivityLog(path, accessionID string, startedAt time.Time) (*ActivityLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	l := &ActivityLog{path: path, f: f, w: bufio.NewWriter(f)}
	if err := writeHeader(l.w, accessionID, startedAt); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing activity log header: %w", err)
	}
	return l, nil
}

func writeHeader(w io.Writer, accessionID string, startedAt time.Time) error {
	_, err := fmt.Fprintf(w, "# fixity %s started %s\n", accessionID, startedAt.UTC().Format(time.RFC3339))
	return err
}

// Record appends "[STATUS] path".
func (l *ActivityLog) Record(r Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("activity log is closed")
	}
	_, err := l.w.WriteString(Line(r) + "\n")
	return err
}

// Close flushes and closes the log. Calling it again is a no-op.
func (l *ActivityLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flushing activity log: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing activity log: %w", closeErr)
	}
	return nil
}

// Discard closes the log and removes its file. A run that did not finish
// leaves no partial listing behind.
func (l *ActivityLog) Discard() error {
	closeErr := l.Close()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing activity log: %w", err)
	}
	return closeErr
}

// Line renders a result the way the activity log does.
func Line(r Result) string {
	return fmt.Sprintf("[%s] %s", r.Status, r.FilePath)
}

var _ Recorder = (*ActivityLog)(nil)
var _ Recorder = NopRecorder{}
