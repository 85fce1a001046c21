package da_test

import (
	"context"
	"path/filepath"
	"testing"

	"da-go/internal/checksum"
	"da-go/internal/da"
	"da-go/internal/manifest"
	"da-go/internal/testutil"
)

type fixture struct {
	src   string
	dest  string
	fsmgr *testutil.FaultyFilesystem
	clock *testutil.StubClock
	ids   *testutil.StubIDGenerator
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		src:   filepath.Join(base, "source"),
		dest:  filepath.Join(base, "dest"),
		fsmgr: testutil.NewFaultyFilesystem(),
		clock: testutil.FixedClock(),
		ids:   testutil.NewStubIDGenerator(),
	}
	testutil.WriteTree(t, f.src, files)
	return f
}

func (f *fixture) accessioner(opts da.AccessionOptions) *da.Accessioner {
	return da.NewAccessioner(f.fsmgr, nil, da.NewNopLogger(), f.clock, f.ids, opts)
}

func (f *fixture) accession(id string, mode da.RelocationMode) da.Accession {
	return da.Accession{ID: id, SourceRoot: f.src, DestinationRoot: f.dest, Mode: mode}
}

// run accessions the fixture's source with default options and one worker.
func (f *fixture) run(t *testing.T, id string, mode da.RelocationMode) *da.AccessionResult {
	t.Helper()
	opts := da.DefaultAccessionOptions()
	opts.Workers = 1
	res, err := f.accessioner(opts).Run(context.Background(), f.accession(id, mode))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

func paths(m *manifest.Manifest) []string {
	var out []string
	for _, e := range m.Entries() {
		out = append(out, e.RelativePath)
	}
	return out
}

func md5Digest(s string) checksum.Digest {
	return checksum.Digest{Algorithm: checksum.MD5, Value: testutil.MD5Hex([]byte(s))}
}
