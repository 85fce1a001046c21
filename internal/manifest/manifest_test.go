package manifest

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"da-go/internal/checksum"
)

func TestCanonicalPath(t *testing.T) {
	// A backslash separates only where it is the host separator.
	backslashed := `sub\dir\c.txt`
	if runtime.GOOS == "windows" {
		backslashed = "sub/dir/c.txt"
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple file", input: "a.txt", want: "a.txt"},
		{name: "nested", input: "sub/b.txt", want: "sub/b.txt"},
		{name: "backslashes", input: `sub\dir\c.txt`, want: backslashed},
		{name: "dot segments", input: "./sub/../a.txt", want: "a.txt"},
		{name: "duplicate slashes", input: "sub//b.txt", want: "sub/b.txt"},
		{name: "empty", input: "", wantErr: true},
		{name: "root only", input: ".", wantErr: true},
		{name: "absolute", input: "/etc/passwd", wantErr: true},
		{name: "drive letter", input: "C:/data/x", wantErr: true},
		{name: "escapes root", input: "../x", wantErr: true},
		{name: "escapes after clean", input: "sub/../../x", wantErr: true},
		{name: "invalid utf-8", input: "bad\xffname.txt", wantErr: true},
		{name: "control character", input: "ctl\x01.txt", wantErr: true},
		{name: "unicode", input: "caf\u00e9/\u6587\u66f8.txt", want: "caf\u00e9/\u6587\u66f8.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CanonicalPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("CanonicalPath(%q) error = %v, want ErrInvalidPath", tt.input, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("CanonicalPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func md5Digest(v string) checksum.Digest {
	return checksum.Digest{Algorithm: checksum.MD5, Value: v}
}

func TestManifest_Add(t *testing.T) {
	t.Run("keeps insertion order", func(t *testing.T) {
		m := New("ACC-1", time.Time{})
		for _, p := range []string{"z.txt", "a.txt", "sub/m.txt"} {
			if err := m.Add(Entry{RelativePath: p, Digest: md5Digest("00")}); err != nil {
				t.Fatalf("Add(%q) error = %v", p, err)
			}
		}
		entries := m.Entries()
		want := []string{"z.txt", "a.txt", "sub/m.txt"}
		if len(entries) != len(want) {
			t.Fatalf("Len() = %d, want %d", len(entries), len(want))
		}
		for i, e := range entries {
			if e.RelativePath != want[i] {
				t.Errorf("Entries()[%d] = %q, want %q", i, e.RelativePath, want[i])
			}
		}
	})

	t.Run("rejects duplicates after normalisation", func(t *testing.T) {
		m := New("ACC-1", time.Time{})
		if err := m.Add(Entry{RelativePath: "sub/b.txt"}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		err := m.Add(Entry{RelativePath: "./sub//b.txt"})
		if !errors.Is(err, ErrDuplicatePath) {
			t.Errorf("Add() error = %v, want ErrDuplicatePath", err)
		}
		if m.Len() != 1 {
			t.Errorf("Len() = %d, want 1", m.Len())
		}
	})

	t.Run("rejects escaping paths", func(t *testing.T) {
		m := New("ACC-1", time.Time{})
		if err := m.Add(Entry{RelativePath: "../outside"}); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Add() error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("stores last modified in UTC", func(t *testing.T) {
		m := New("ACC-1", time.Time{})
		loc := time.FixedZone("EST", -5*3600)
		if err := m.Add(Entry{RelativePath: "a", LastModified: time.Date(2024, 1, 1, 5, 0, 0, 0, loc)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if got := m.Entry(0).LastModified.Location(); got != time.UTC {
			t.Errorf("LastModified location = %v, want UTC", got)
		}
	})
}

func TestManifest_Lookup(t *testing.T) {
	m := New("ACC-1", time.Time{})
	m.Add(Entry{RelativePath: "sub/b.txt", Size: 5})

	e, ok := m.Lookup("./sub/b.txt")
	if !ok {
		t.Fatal("Lookup() did not find entry")
	}
	if e.Size != 5 {
		t.Errorf("Size = %d, want 5", e.Size)
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Error("Lookup(missing) found an entry")
	}
}

func TestManifest_Aggregates(t *testing.T) {
	m := New("ACC-1", time.Time{})
	m.Add(Entry{RelativePath: "a", Size: 3, Digest: md5Digest("00")})
	m.Add(Entry{RelativePath: "b", Size: 4, Digest: checksum.Digest{Algorithm: checksum.SHA256, Value: "00"}})
	m.Add(Entry{RelativePath: "c", Size: 5, Digest: md5Digest("00")})

	if got := m.TotalSize(); got != 12 {
		t.Errorf("TotalSize() = %d, want 12", got)
	}
	algs := m.Algorithms()
	if len(algs) != 2 || algs[0] != checksum.MD5 || algs[1] != checksum.SHA256 {
		t.Errorf("Algorithms() = %v, want [MD5 SHA-256]", algs)
	}
}

func TestEntry_OriginalName(t *testing.T) {
	e := Entry{RelativePath: "deep/er/file.pdf"}
	if got := e.OriginalName(); got != "file.pdf" {
		t.Errorf("OriginalName() = %q, want %q", got, "file.pdf")
	}
}

func TestIngestNoteFor(t *testing.T) {
	got := IngestNoteFor(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	if got != "Transferred on 2024-01-15T10:30:00Z" {
		t.Errorf("IngestNoteFor() = %q", got)
	}
}
