package da_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"da-go/internal/checksum"
	"da-go/internal/da"
	"da-go/internal/encryption"
	"da-go/internal/escrow"
	"da-go/internal/manifest"
	"da-go/internal/report"
	"da-go/internal/testutil"
)

type serviceFixture struct {
	*fixture
	svc      *da.Service
	register da.Register
	escrow   *escrow.Escrow
}

func newServiceFixture(t *testing.T, files map[string]string) *serviceFixture {
	t.Helper()
	f := newFixture(t, files)
	reg := testutil.NewTestRegister(t)
	esc, _ := testutil.NewTestEscrow()
	opts := da.Options{Accession: da.DefaultAccessionOptions(), FixityWorkers: 2}
	opts.Accession.Workers = 2
	svc := da.NewService(f.fsmgr, reg, esc, nil, da.NewNopLogger(), f.clock, f.ids, opts)
	return &serviceFixture{fixture: f, svc: svc, register: reg, escrow: esc}
}

func (s *serviceFixture) accessionCopy(t *testing.T, id string) *da.AccessionResult {
	t.Helper()
	res, err := s.svc.Accession(context.Background(), s.accession(id, da.ModeCopy))
	if err != nil {
		t.Fatalf("Accession() error = %v", err)
	}
	return res
}

func TestService_Accession(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})
	res := s.accessionCopy(t, "TEST-1")

	wantPath := filepath.Join(s.dest, "TEST-1.xml")
	if res.ManifestPath != wantPath {
		t.Errorf("ManifestPath = %q, want %q", res.ManifestPath, wantPath)
	}
	onDisk, err := manifest.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if onDisk.Len() != 2 || onDisk.AccessionID != "TEST-1" {
		t.Errorf("manifest on disk = %s with %d entries", onDisk.AccessionID, onDisk.Len())
	}

	if !res.Escrowed {
		t.Error("Escrowed = false, want true")
	}
	var escrowed bytes.Buffer
	if err := s.escrow.Retrieve("TEST-1", &escrowed, encryption.TestDecryptionContext{}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	raw, _ := os.ReadFile(wantPath)
	if !bytes.Equal(escrowed.Bytes(), raw) {
		t.Error("escrowed manifest differs from the written one")
	}

	rec, err := s.register.FindAccession("TEST-1")
	if err != nil || rec == nil {
		t.Fatalf("FindAccession() = %v, %v", rec, err)
	}
	if rec.FileCount != 2 || rec.TotalBytes != 10 || rec.Mode != da.ModeCopy || !rec.Escrowed || rec.Aborted {
		t.Errorf("register record = %+v", rec)
	}
	if rec.SourceRoot != s.src {
		t.Errorf("SourceRoot = %q, want %q", rec.SourceRoot, s.src)
	}
}

func TestService_AccessionAbortedStillWritesManifest(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "1", "b.txt": "2"})
	s.fsmgr.RelocateErr["b.txt"] = da.ErrDestinationWrite

	res, err := s.svc.Accession(context.Background(), s.accession("HALF", da.ModeCopy))
	if !errors.Is(err, da.ErrAborted) {
		t.Fatalf("Accession() error = %v, want ErrAborted", err)
	}
	m, rerr := manifest.ReadFile(res.ManifestPath)
	if rerr != nil {
		t.Fatalf("partial manifest not written: %v", rerr)
	}
	if _, ok := m.Lookup("b.txt"); ok {
		t.Error("failed file recorded in partial manifest")
	}
	rec, _ := s.register.FindAccession("HALF")
	if rec == nil || !rec.Aborted {
		t.Errorf("register record = %+v, want aborted", rec)
	}
}

func TestService_Fixity(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})
	res := s.accessionCopy(t, "TEST-1")
	out := filepath.Join(t.TempDir(), "reports")

	fr, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath, OutDir: out})
	if err != nil {
		t.Fatalf("Fixity() error = %v", err)
	}
	if sum := fr.Report.Summary(); !sum.Clean() || sum.Total != 2 {
		t.Errorf("summary = %s", sum)
	}
	if want := report.ReportPaths(out, "TEST-1"); fr.Paths != want {
		t.Errorf("Paths = %+v, want %+v", fr.Paths, want)
	}

	csvFile, err := os.Open(fr.Paths.CSV)
	if err != nil {
		t.Fatal(err)
	}
	defer csvFile.Close()
	rows, err := report.ReadCSV(csvFile, checksum.MD5)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Status != report.StatusOK || rows[1].Status != report.StatusOK {
		t.Errorf("csv rows = %+v", rows)
	}

	logData, err := os.ReadFile(fr.Paths.Log)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(logData), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("log lines = %q, want header and two results", lines)
	}
	if !strings.HasPrefix(lines[0], "# fixity TEST-1 started 2024-03-01T09:00:00Z") {
		t.Errorf("log header = %q", lines[0])
	}
	folder := filepath.Join(s.dest, "TEST-1")
	wantLines := []string{
		"[OK] " + filepath.Join(folder, "a.txt"),
		"[OK] " + filepath.Join(folder, "sub", "b.txt"),
	}
	for i, want := range wantLines {
		if lines[i+1] != want {
			t.Errorf("log line %d = %q, want %q", i+1, lines[i+1], want)
		}
	}

	runs, err := s.register.ListFixityRuns("TEST-1", 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListFixityRuns() = %v, %v", runs, err)
	}
	if runs[0].ID != fr.RunID || runs[0].OK != 2 || runs[0].Root != folder {
		t.Errorf("fixity run = %+v", runs[0])
	}
}

type fileState struct {
	data  string
	mtime time.Time
	atime time.Time
}

func snapshotFiles(t *testing.T, fsmgr da.FilesystemManager, files ...string) map[string]fileState {
	t.Helper()
	out := map[string]fileState{}
	for _, p := range files {
		// Times first: the read below must not be what we measure.
		resolved, err := fsmgr.Resolve(p)
		if err != nil {
			t.Fatal(err)
		}
		times := fsmgr.Times(resolved)
		r, err := fsmgr.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[p] = fileState{data: string(data), mtime: times.Mtime, atime: times.Atime}
	}
	return out
}

func TestService_FixityRepeatsIdenticallyAndLeavesFilesAlone(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello", "sub/b.txt": "world", "c.txt": "gone"})
	res := s.accessionCopy(t, "IDEM")
	folder := filepath.Join(s.dest, "IDEM")
	if err := os.WriteFile(filepath.Join(folder, "sub", "b.txt"), []byte("WORLD"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(folder, "c.txt")); err != nil {
		t.Fatal(err)
	}
	// Pin the timestamps in the past so any read that updates atime shows.
	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	checked := []string{filepath.Join(folder, "a.txt"), filepath.Join(folder, "sub", "b.txt")}
	for _, p := range checked {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}
	before := snapshotFiles(t, s.fsmgr, checked...)

	var csvs, logs [][]byte
	for i := 0; i < 2; i++ {
		fr, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath})
		if err != nil {
			t.Fatalf("Fixity() #%d error = %v", i, err)
		}
		if sum := fr.Report.Summary(); sum.OK != 1 || sum.Mismatch != 1 || sum.Missing != 1 {
			t.Errorf("Fixity() #%d summary = %s", i, sum)
		}
		csvData, err := os.ReadFile(fr.Paths.CSV)
		if err != nil {
			t.Fatal(err)
		}
		logData, err := os.ReadFile(fr.Paths.Log)
		if err != nil {
			t.Fatal(err)
		}
		csvs = append(csvs, csvData)
		logs = append(logs, logData)
		s.clock.Advance(time.Hour)
	}

	if !bytes.Equal(csvs[0], csvs[1]) {
		t.Errorf("reports differ between runs:\n%s\n%s", csvs[0], csvs[1])
	}
	header0, body0, _ := strings.Cut(string(logs[0]), "\n")
	header1, body1, _ := strings.Cut(string(logs[1]), "\n")
	if body0 != body1 {
		t.Errorf("log bodies differ between runs:\n%s\n%s", body0, body1)
	}
	if header0 == header1 {
		t.Errorf("log header %q did not record the later start", header1)
	}

	after := snapshotFiles(t, s.fsmgr, checked...)
	for _, p := range checked {
		b, a := before[p], after[p]
		if a.data != b.data {
			t.Errorf("%s content changed by verification", p)
		}
		if !a.mtime.Equal(b.mtime) {
			t.Errorf("%s mtime = %v, want %v", p, a.mtime, b.mtime)
		}
		if runtime.GOOS == "linux" && !a.atime.Equal(b.atime) {
			t.Errorf("%s atime = %v, want %v", p, a.atime, b.atime)
		}
	}
}

func TestService_FixityCancelledLeavesNoLog(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "STOP")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.svc.Fixity(ctx, da.FixityRequest{ManifestPath: res.ManifestPath}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Fixity() error = %v, want context.Canceled", err)
	}
	rp := report.ReportPaths(s.dest, "STOP")
	for _, p := range []string{rp.Log, rp.CSV} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s left behind by a cancelled run (err = %v)", p, err)
		}
	}
}

func TestService_FixityDefaultsBesideManifest(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "SIDE")

	fr, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath})
	if err != nil {
		t.Fatalf("Fixity() error = %v", err)
	}
	if want := report.ReportPaths(s.dest, "SIDE"); fr.Paths != want {
		t.Errorf("Paths = %+v, want %+v", fr.Paths, want)
	}
}

func TestService_FixityBadManifestWritesNothing(t *testing.T) {
	s := newServiceFixture(t, nil)
	dir := t.TempDir()
	broken := filepath.Join(dir, "BROKEN.xml")
	if err := os.WriteFile(broken, []byte("<accession><file>"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	tests := []struct {
		name string
		path string
	}{
		{"unparsable", broken},
		{"absent", filepath.Join(dir, "ABSENT.xml")},
		{"empty path", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: tt.path, OutDir: out})
			var merr *da.ManifestError
			if !errors.As(err, &merr) || !errors.Is(err, da.ErrManifest) {
				t.Fatalf("Fixity() error = %v, want *ManifestError", err)
			}
		})
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output directory created for a bad manifest (err = %v)", err)
	}
}

func TestService_FixityFromEscrow(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "ESC-1")
	if err := os.Remove(res.ManifestPath); err != nil {
		t.Fatal(err)
	}

	fr, err := s.svc.Fixity(context.Background(), da.FixityRequest{
		AccessionID: "ESC-1",
		FromEscrow:  true,
		Decrypt:     encryption.TestDecryptionContext{},
	})
	if err != nil {
		t.Fatalf("Fixity() error = %v", err)
	}
	if !fr.Report.Summary().Clean() {
		t.Errorf("summary = %s", fr.Report.Summary())
	}
	// The register supplies the destination, so reports land there.
	if want := report.ReportPaths(s.dest, "ESC-1"); fr.Paths != want {
		t.Errorf("Paths = %+v, want %+v", fr.Paths, want)
	}

	_, err = s.svc.Fixity(context.Background(), da.FixityRequest{AccessionID: "NOPE", FromEscrow: true, Decrypt: encryption.TestDecryptionContext{}})
	if !errors.Is(err, da.ErrManifest) || !errors.Is(err, da.ErrNotInVault) {
		t.Errorf("Fixity() unknown accession error = %v", err)
	}
}

func TestService_FixityFallsBackToSource(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "GONE")
	if err := os.RemoveAll(filepath.Join(s.dest, "GONE")); err != nil {
		t.Fatal(err)
	}

	fr, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath})
	if err != nil {
		t.Fatalf("Fixity() error = %v", err)
	}
	if fr.Report.Root != s.src {
		t.Errorf("Root = %q, want source %q", fr.Report.Root, s.src)
	}
	if !fr.Report.Summary().Clean() {
		t.Errorf("summary = %s", fr.Report.Summary())
	}
}

func TestService_StatusAndHistory(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "ST-1")
	for i := 0; i < 3; i++ {
		if _, err := s.svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath}); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.svc.Status("ST-1", 2)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Accession.AccessionID != "ST-1" || len(st.Runs) != 2 {
		t.Errorf("Status() = %+v with %d runs, want 2", st.Accession, len(st.Runs))
	}
	if _, err := s.svc.Status("UNKNOWN", 0); err == nil {
		t.Error("Status() of unknown accession error = nil")
	}

	if _, err := s.register.CreateOperation("accession", "ST-1"); err != nil {
		t.Fatal(err)
	}
	ops, err := s.svc.History(10)
	if err != nil || len(ops) != 1 || ops[0].Operation != "accession" {
		t.Errorf("History() = %v, %v", ops, err)
	}
}

func TestService_WithoutRegisterOrEscrow(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"})
	svc := da.NewService(f.fsmgr, nil, nil, nil, da.NewNopLogger(), f.clock, f.ids, da.Options{})

	res, err := svc.Accession(context.Background(), f.accession("BARE", da.ModeCopy))
	if err != nil {
		t.Fatalf("Accession() error = %v", err)
	}
	if res.Escrowed {
		t.Error("Escrowed = true without an escrow")
	}
	if _, err := svc.Fixity(context.Background(), da.FixityRequest{ManifestPath: res.ManifestPath}); err != nil {
		t.Errorf("Fixity() error = %v", err)
	}
	if _, err := svc.Status("BARE", 0); err == nil {
		t.Error("Status() without register error = nil")
	}
	if err := svc.RetrieveManifest("BARE", &bytes.Buffer{}, nil); err == nil {
		t.Error("RetrieveManifest() without escrow error = nil")
	}
}

func TestService_RetrieveManifest(t *testing.T) {
	s := newServiceFixture(t, map[string]string{"a.txt": "hello"})
	res := s.accessionCopy(t, "GET-1")

	var buf bytes.Buffer
	if err := s.svc.RetrieveManifest("GET-1", &buf, encryption.TestDecryptionContext{}); err != nil {
		t.Fatalf("RetrieveManifest() error = %v", err)
	}
	m, err := manifest.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.Len() != res.Manifest.Len() {
		t.Errorf("retrieved %d entries, want %d", m.Len(), res.Manifest.Len())
	}
	if err := s.svc.RetrieveManifest("../etc", &buf, encryption.TestDecryptionContext{}); !errors.Is(err, da.ErrInput) {
		t.Errorf("RetrieveManifest() bad id error = %v, want ErrInput", err)
	}
}

const legacyDoc = `<?xml version='1.0' encoding='UTF-8'?>
<collection xmlns="http://dataaccessioner.org/schema/dda-1-1" name="">
  <accession number="OLD-7">
    <folder name="donor-drive">
      <folder name="sub">
        <file name="b.txt" size="5" MD5="7d793037a0760186574b0282f2f435e7"/>
      </folder>
    </folder>
  </accession>
</collection>
`

func TestService_ImportManifest(t *testing.T) {
	s := newServiceFixture(t, nil)
	dir := t.TempDir()
	in := filepath.Join(dir, "legacy.xml")
	out := filepath.Join(dir, "OLD-7.xml")
	if err := os.WriteFile(in, []byte(legacyDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := s.svc.ImportManifest(in, out)
	if err != nil {
		t.Fatalf("ImportManifest() error = %v", err)
	}
	if m.Len() != 1 || m.Entry(0).RelativePath != "sub/b.txt" {
		t.Fatalf("imported entries = %v", paths(m))
	}
	flat, err := manifest.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() of imported manifest error = %v", err)
	}
	if flat.AccessionID != "OLD-7" {
		t.Errorf("AccessionID = %q", flat.AccessionID)
	}

	if _, err := s.svc.ImportManifest(filepath.Join(dir, "missing.xml"), out); !errors.Is(err, da.ErrManifest) {
		t.Errorf("ImportManifest() missing input error = %v, want ErrManifest", err)
	}
}
