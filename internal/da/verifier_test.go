package da_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"da-go/internal/da"
	"da-go/internal/report"
)

// collector records results in the order the verifier hands them over.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) Record(r report.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, r.RelativePath)
	return nil
}

func statuses(rep *report.Report) map[string]report.Status {
	out := map[string]report.Status{}
	for _, r := range rep.Results {
		out[r.RelativePath] = r.Status
	}
	return out
}

func TestVerifier_RoundTrip(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})
	res := f.run(t, "TEST-1", da.ModeCopy)
	folder := filepath.Join(f.dest, "TEST-1")

	v := da.NewVerifier(f.fsmgr, da.NewNopLogger(), 2)
	for i := 0; i < 2; i++ {
		rep, err := v.Verify(context.Background(), res.Manifest, folder, nil)
		if err != nil {
			t.Fatalf("Verify() #%d error = %v", i, err)
		}
		if sum := rep.Summary(); !sum.Clean() || sum.Total != 2 {
			t.Errorf("Verify() #%d summary = %s, want 2 ok", i, sum)
		}
	}
}

func TestVerifier_Classification(t *testing.T) {
	f := newFixture(t, map[string]string{
		"keep.txt":   "same",
		"edit.txt":   "before",
		"gone.txt":   "here",
		"dir.txt":    "file",
		"sub/x.txt":  "x",
		"sub2/y.txt": "y",
	})
	res := f.run(t, "CLS", da.ModeCopy)
	folder := filepath.Join(f.dest, "CLS")

	if err := os.WriteFile(filepath.Join(folder, "edit.txt"), []byte("after"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(folder, "gone.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(folder, "dir.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(folder, "dir.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	// A parent directory replaced by a file still reads as missing.
	if err := os.RemoveAll(filepath.Join(folder, "sub2")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "sub2"), []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := da.NewVerifier(f.fsmgr, da.NewNopLogger(), 4).Verify(context.Background(), res.Manifest, folder, nil)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	want := map[string]report.Status{
		"keep.txt":   report.StatusOK,
		"edit.txt":   report.StatusMismatch,
		"gone.txt":   report.StatusMissing,
		"dir.txt":    report.StatusError,
		"sub/x.txt":  report.StatusOK,
		"sub2/y.txt": report.StatusMissing,
	}
	got := statuses(rep)
	for path, status := range want {
		if got[path] != status {
			t.Errorf("%s status = %s, want %s", path, got[path], status)
		}
	}

	for _, r := range rep.Results {
		switch r.Status {
		case report.StatusMismatch:
			if r.ComputedDigest.Equal(r.StoredDigest) {
				t.Errorf("%s: mismatch with equal digests", r.RelativePath)
			}
		case report.StatusError:
			if r.ErrorDetail == "" {
				t.Errorf("%s: ERROR without detail", r.RelativePath)
			}
		}
	}
	if sum := rep.Summary(); sum.Total != 6 || sum.OK != 2 || sum.Mismatch != 1 || sum.Missing != 2 || sum.Error != 1 {
		t.Errorf("summary = %s", sum)
	}
}

func TestVerifier_UnreadableIsError(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "1", "b.txt": "2"})
	res := f.run(t, "READ", da.ModeCopy)
	f.fsmgr.OpenErr["b.txt"] = os.ErrPermission

	rep, err := da.NewVerifier(f.fsmgr, da.NewNopLogger(), 1).Verify(context.Background(), res.Manifest, filepath.Join(f.dest, "READ"), nil)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got := statuses(rep); got["a.txt"] != report.StatusOK || got["b.txt"] != report.StatusError {
		t.Errorf("statuses = %v, want a OK and b ERROR", got)
	}
}

func TestVerifier_RecordsInManifestOrder(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 64; i++ {
		// Varying sizes so workers finish out of order.
		files[fmt.Sprintf("f%03d.bin", i)] = string(make([]byte, (64-i)*1024))
	}
	f := newFixture(t, files)
	res := f.run(t, "ORDER", da.ModeCopy)

	rec := &collector{}
	rep, err := da.NewVerifier(f.fsmgr, da.NewNopLogger(), 8).Verify(context.Background(), res.Manifest, filepath.Join(f.dest, "ORDER"), rec)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	want := paths(res.Manifest)
	if !slices.Equal(rec.paths, want) {
		t.Errorf("recorded order differs from manifest order")
	}
	var reported []string
	for _, r := range rep.Results {
		reported = append(reported, r.RelativePath)
	}
	if !slices.Equal(reported, want) {
		t.Errorf("report order differs from manifest order")
	}
}

func TestVerifier_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "1"})
	res := f.run(t, "CANCEL", da.ModeCopy)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := da.NewVerifier(f.fsmgr, da.NewNopLogger(), 1).Verify(ctx, res.Manifest, filepath.Join(f.dest, "CANCEL"), nil)
	if err == nil {
		t.Fatalf("Verify() error = nil, report %+v", rep)
	}
}

func TestResolveRoot(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "1"})
	folder := filepath.Join(f.dest, "RR")

	t.Run("falls back to source", func(t *testing.T) {
		got, err := da.ResolveRoot(f.fsmgr, folder, f.src)
		if err != nil {
			t.Fatalf("ResolveRoot() error = %v", err)
		}
		if got != f.src {
			t.Errorf("ResolveRoot() = %q, want %q", got, f.src)
		}
	})

	t.Run("prefers accession folder", func(t *testing.T) {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			t.Fatal(err)
		}
		got, err := da.ResolveRoot(f.fsmgr, folder, f.src)
		if err != nil {
			t.Fatalf("ResolveRoot() error = %v", err)
		}
		if got != folder {
			t.Errorf("ResolveRoot() = %q, want %q", got, folder)
		}
	})

	t.Run("neither exists", func(t *testing.T) {
		_, err := da.ResolveRoot(f.fsmgr, filepath.Join(f.dest, "nope"), filepath.Join(f.src, "nope"))
		if !errors.Is(err, da.ErrInput) {
			t.Errorf("ResolveRoot() error = %v, want ErrInput", err)
		}
	})
}
