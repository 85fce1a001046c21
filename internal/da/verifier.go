package da

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"runtime"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"da-go/internal/checksum"
	"da-go/internal/manifest"
	"da-go/internal/report"
)

// Verifier recomputes digests for a manifest against a tree on disk. It
// never writes to the tree or the manifest.
type Verifier struct {
	fsmgr   FilesystemManager
	logger  Logger
	workers int
}

// NewVerifier creates a Verifier. workers < 1 means one per CPU.
func NewVerifier(fsmgr FilesystemManager, logger Logger, workers int) *Verifier {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Verifier{fsmgr: fsmgr, logger: logger, workers: workers}
}

// ResolveRoot picks the tree to verify: the relocated accession folder when
// it exists, otherwise the original source root.
func ResolveRoot(fsmgr FilesystemManager, accessionFolder, sourceRoot string) (string, error) {
	for _, candidate := range []string{accessionFolder, sourceRoot} {
		if candidate == "" {
			continue
		}
		p, err := fsmgr.Resolve(candidate)
		if err == nil && p.IsDir() {
			return p.String(), nil
		}
	}
	return "", &InputError{
		Field: "verification root",
		Value: accessionFolder,
		Err:   fmt.Errorf("neither the accession folder nor the source root %q is an accessible directory", sourceRoot),
	}
}

// Verify checks every entry of m under root. Results come back in manifest
// order and are passed to rec in that order as soon as every earlier entry
// has finished. A per-file problem becomes an ERROR result; only
// cancellation of ctx fails the run. A recorder failure does not stop
// verification and is returned alongside the complete report.
func (v *Verifier) Verify(ctx context.Context, m *manifest.Manifest, root string, rec report.Recorder) (*report.Report, error) {
	if rec == nil {
		rec = report.NopRecorder{}
	}
	n := m.Len()
	results := make([]report.Result, n)

	var recErr error
	emitter := newOrderedEmitter(n, func(i int) {
		if err := rec.Record(results[i]); err != nil && recErr == nil {
			recErr = fmt.Errorf("recording %s: %w", results[i].FilePath, err)
		}
	})

	v.logger.Info("fixity started", "accession", m.AccessionID, "root", root, "entries", n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.check(m.Entry(i), root)
			emitter.done(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &report.Report{AccessionID: m.AccessionID, Root: root, Results: results}
	v.logger.Info("fixity finished", "accession", m.AccessionID, "summary", rep.Summary().String())
	return rep, recErr
}

// check classifies a single entry.
func (v *Verifier) check(e manifest.Entry, root string) report.Result {
	path := manifest.LocalPath(root, e.RelativePath)
	res := report.Result{
		RelativePath: e.RelativePath,
		FilePath:     path,
		StoredDigest: e.Digest,
	}

	info, err := v.fsmgr.Lstat(path)
	if err != nil {
		if isNotExist(err) {
			res.Status = report.StatusMissing
			return res
		}
		return errorResult(res, err)
	}
	if !info.Mode().IsRegular() {
		return errorResult(res, fmt.Errorf("%s: not a regular file (%s)", path, info.Mode().Type()))
	}

	computed, _, err := checksum.SumFile(func() (io.ReadCloser, error) { return v.fsmgr.Open(path) }, e.Digest.Algorithm)
	if err != nil {
		if isNotExist(err) {
			res.Status = report.StatusMissing
			return res
		}
		return errorResult(res, err)
	}

	res.ComputedDigest = computed
	if computed.Equal(e.Digest) {
		res.Status = report.StatusOK
	} else {
		res.Status = report.StatusMismatch
		v.logger.Warn("fixity mismatch", "path", path, "stored", e.Digest.Value, "computed", computed.Value)
	}
	return res
}

func errorResult(res report.Result, err error) report.Result {
	res.Status = report.StatusError
	res.ErrorDetail = err.Error()
	return res
}

// isNotExist treats a path whose parent became a file the same as a
// missing path.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// orderedEmitter calls emit(i) for indexes in ascending order, releasing
// each index only after all lower ones are done.
type orderedEmitter struct {
	mu       sync.Mutex
	finished []bool
	next     int
	emit     func(int)
}

func newOrderedEmitter(n int, emit func(int)) *orderedEmitter {
	return &orderedEmitter{finished: make([]bool, n), emit: emit}
}

func (o *orderedEmitter) done(i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[i] = true
	for o.next < len(o.finished) && o.finished[o.next] {
		o.emit(o.next)
		o.next++
	}
}
