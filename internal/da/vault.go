package da

import "io"

// Vault stores escrow copies away from the destination tree: manifests, so
// an accession can still be verified if its manifest is lost, and per-host
// metadata such as the accession register snapshot and key files.
type Vault interface {
	// PutManifest stores the (already compressed and encrypted) manifest
	// for an accession, replacing any previous copy.
	// size is the number of bytes that will be read from r.
	PutManifest(accessionID string, r io.Reader, size int64) error

	// GetManifest writes the stored manifest for an accession to w.
	GetManifest(accessionID string, w io.Writer) error

	// PutMetadata stores a named metadata item for a specific host.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the metadata for consistency checks.
	// Known names: "db" (register snapshot), "public_key", "private_key".
	PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item for a specific host and writes it to w.
	GetMetadata(hostID string, name string, w io.Writer) error

	// GetMetadataVersion returns the metadata version for a named item on a host.
	// Returns 0 if no metadata has been stored for this host/name.
	GetMetadataVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

// ManifestEscrow deposits and retrieves manifest copies in a vault.
type ManifestEscrow interface {
	Deposit(accessionID string, r io.Reader) error
	Retrieve(accessionID string, w io.Writer, decrypt DecryptionContext) error
}
