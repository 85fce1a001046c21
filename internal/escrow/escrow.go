// Package escrow keeps off-site copies of manifests and the register in a
// vault. Everything stored is zstd-compressed, then encrypted.
package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"da-go/internal/da"
)

// SnapshotName is the metadata name of the escrowed register snapshot.
const SnapshotName = "db"

// Escrow implements da.ManifestEscrow over a vault and an encryptor.
type Escrow struct {
	vault     da.Vault
	encryptor da.Encryptor
	logger    da.Logger
}

// New creates an Escrow. A nil logger discards output.
func New(v da.Vault, enc da.Encryptor, logger da.Logger) *Escrow {
	if logger == nil {
		logger = da.NewNopLogger()
	}
	return &Escrow{vault: v, encryptor: enc, logger: logger}
}

// Deposit seals a manifest document and stores it under its accession id,
// replacing any earlier copy.
func (e *Escrow) Deposit(accessionID string, r io.Reader) error {
	var sealed bytes.Buffer
	n, err := e.seal(r, &sealed)
	if err != nil {
		return fmt.Errorf("sealing manifest %s: %w", accessionID, err)
	}
	size := int64(sealed.Len())
	if err := e.vault.PutManifest(accessionID, &sealed, size); err != nil {
		return fmt.Errorf("storing manifest %s: %w", accessionID, err)
	}
	e.logger.Info("manifest escrowed", "accession", accessionID, "bytes", n, "stored", size)
	return nil
}

// Retrieve writes the plaintext manifest for an accession to w.
func (e *Escrow) Retrieve(accessionID string, w io.Writer, decrypt da.DecryptionContext) error {
	if decrypt == nil {
		return errors.New("escrow retrieval needs an unlocked key")
	}
	var sealed bytes.Buffer
	if err := e.vault.GetManifest(accessionID, &sealed); err != nil {
		return err
	}
	if err := open(&sealed, w, decrypt); err != nil {
		return fmt.Errorf("opening escrowed manifest %s: %w", accessionID, err)
	}
	return nil
}

// DepositSnapshot seals the register snapshot at path and stores it for
// hostID with the given version.
func (e *Escrow) DepositSnapshot(hostID, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening register snapshot: %w", err)
	}
	defer f.Close()

	var sealed bytes.Buffer
	if _, err := e.seal(f, &sealed); err != nil {
		return fmt.Errorf("sealing register snapshot: %w", err)
	}
	if err := e.vault.PutMetadata(hostID, SnapshotName, &sealed, int64(sealed.Len()), version); err != nil {
		return fmt.Errorf("storing register snapshot: %w", err)
	}
	e.logger.Debug("register snapshot escrowed", "host", hostID, "version", version)
	return nil
}

// RetrieveSnapshot writes the plaintext register snapshot for hostID to w.
func (e *Escrow) RetrieveSnapshot(hostID string, w io.Writer, decrypt da.DecryptionContext) error {
	var sealed bytes.Buffer
	if err := e.vault.GetMetadata(hostID, SnapshotName, &sealed); err != nil {
		return err
	}
	return open(&sealed, w, decrypt)
}

// SnapshotVersion returns the version of the escrowed register, or 0.
func (e *Escrow) SnapshotVersion(hostID string) (int64, error) {
	return e.vault.GetMetadataVersion(hostID, SnapshotName)
}

// seal compresses r and encrypts the result into w. It returns the
// plaintext length.
func (e *Escrow) seal(r io.Reader, w io.Writer) (int64, error) {
	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("creating compressor: %w", err)
	}
	n, err := io.Copy(zw, r)
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("compressing: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("compressing: %w", err)
	}
	if err := e.encryptor.Encrypt(&compressed, w); err != nil {
		return 0, err
	}
	return n, nil
}

func open(r io.Reader, w io.Writer, decrypt da.DecryptionContext) error {
	var compressed bytes.Buffer
	if err := decrypt.Decrypt(r, &compressed); err != nil {
		return err
	}
	zr, err := zstd.NewReader(&compressed)
	if err != nil {
		return fmt.Errorf("creating decompressor: %w", err)
	}
	defer zr.Close()
	if _, err := io.Copy(w, zr); err != nil {
		return fmt.Errorf("decompressing: %w", err)
	}
	return nil
}

var _ da.ManifestEscrow = (*Escrow)(nil)
