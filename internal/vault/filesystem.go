package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"da-go/internal/da"
)

// manifestExt names escrowed manifests: compressed, then sealed.
const manifestExt = ".xml.zst.age"

// FileSystemVault keeps escrow copies in a directory tree:
//
//	<root>/
//	  manifests/
//	    <accessionID>.xml.zst.age
//	  metadata/
//	    <hostID>/
//	      <name>          (e.g. "db", "public_key")
//	      <name>.version
type FileSystemVault struct {
	name        string
	root        string
	manifestDir string
	metadataDir string
}

// NewFileSystemVault creates a filesystem vault rooted at root, creating
// its directories as needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	v := &FileSystemVault{
		name:        name,
		root:        root,
		manifestDir: filepath.Join(root, "manifests"),
		metadataDir: filepath.Join(root, "metadata"),
	}
	for _, dir := range []string{v.manifestDir, v.metadataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating vault directory: %w", err)
		}
	}
	return v, nil
}

// Name returns the configured vault name.
func (v *FileSystemVault) Name() string { return v.name }

// PutManifest replaces the escrow copy of an accession's manifest.
func (v *FileSystemVault) PutManifest(accessionID string, r io.Reader, size int64) error {
	if err := checkSegment("accession id", accessionID); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(v.manifestDir, accessionID+manifestExt), r, size)
}

// GetManifest writes the escrow copy of an accession's manifest to w.
func (v *FileSystemVault) GetManifest(accessionID string, w io.Writer) error {
	if err := checkSegment("accession id", accessionID); err != nil {
		return err
	}
	return readInto(filepath.Join(v.manifestDir, accessionID+manifestExt), w, "manifest "+accessionID)
}

// PutMetadata stores a named item for a host with its version.
func (v *FileSystemVault) PutMetadata(hostID, name string, r io.Reader, size int64, version int64) error {
	dir, err := v.hostDir(hostID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating host directory: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, name), r, size); err != nil {
		return err
	}
	ver := strconv.FormatInt(version, 10)
	return writeAtomic(filepath.Join(dir, name+".version"), strings.NewReader(ver), int64(len(ver)))
}

// GetMetadata writes a host's named item to w.
func (v *FileSystemVault) GetMetadata(hostID, name string, w io.Writer) error {
	dir, err := v.hostDir(hostID, name)
	if err != nil {
		return err
	}
	return readInto(filepath.Join(dir, name), w, fmt.Sprintf("metadata %q for host %s", name, hostID))
}

// GetMetadataVersion returns 0 when the item was never stored.
func (v *FileSystemVault) GetMetadataVersion(hostID, name string) (int64, error) {
	dir, err := v.hostDir(hostID, name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".version"))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the vault directories exist and accept writes.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.manifestDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault %s not accessible: %w", v.name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault %s: %s is not a directory", v.name, dir)
		}
	}
	probe, err := os.CreateTemp(v.manifestDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault %s is not writable: %w", v.name, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (v *FileSystemVault) hostDir(hostID, name string) (string, error) {
	if err := checkSegment("host id", hostID); err != nil {
		return "", err
	}
	if err := checkSegment("metadata name", name); err != nil {
		return "", err
	}
	return filepath.Join(v.metadataDir, hostID), nil
}

// checkSegment keeps keys from escaping their directory.
func checkSegment(what, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid %s %q", what, s)
	}
	return nil
}

// writeAtomic copies exactly size bytes from r into path via a temp file
// and rename, so readers never see a partial escrow copy.
func writeAtomic(path string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	done := false
	defer func() {
		if !done {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if written != size {
		tmp.Close()
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	done = true
	return nil
}

func readInto(path string, w io.Writer, what string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", what, da.ErrNotInVault)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", what, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", what, err)
	}
	return nil
}

// Compile-time check that FileSystemVault implements da.Vault
var _ da.Vault = (*FileSystemVault)(nil)
