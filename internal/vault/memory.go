package vault

import (
	"fmt"
	"io"
	"sync"

	"da-go/internal/da"
)

// MemoryVault keeps escrow copies in memory. Safe for concurrent use.
type MemoryVault struct {
	name      string
	mu        sync.RWMutex
	manifests map[string][]byte
	metadata  map[string][]byte // "hostID/name"
	versions  map[string]int64  // "hostID/name"
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		manifests: map[string][]byte{},
		metadata:  map[string][]byte{},
		versions:  map[string]int64{},
	}
}

// Name returns the configured vault name.
func (m *MemoryVault) Name() string { return m.name }

func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

func (m *MemoryVault) PutManifest(accessionID string, r io.Reader, size int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[accessionID] = data
	return nil
}

func (m *MemoryVault) GetManifest(accessionID string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.manifests[accessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("manifest %s: %w", accessionID, da.ErrNotInVault)
	}
	_, err := w.Write(data)
	return err
}

// Manifest returns the raw stored bytes for an accession, for tests.
func (m *MemoryVault) Manifest(accessionID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.manifests[accessionID]
	return data, ok
}

func (m *MemoryVault) PutMetadata(hostID, name string, r io.Reader, size int64, version int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := hostID + "/" + name
	m.metadata[key] = data
	m.versions[key] = version
	return nil
}

func (m *MemoryVault) GetMetadata(hostID, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.metadata[hostID+"/"+name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %q for host %s: %w", name, hostID, da.ErrNotInVault)
	}
	_, err := w.Write(data)
	return err
}

func (m *MemoryVault) GetMetadataVersion(hostID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[hostID+"/"+name], nil
}

// ValidateSetup always succeeds for an in-memory vault.
func (m *MemoryVault) ValidateSetup() error { return nil }

// Compile-time check that MemoryVault implements da.Vault
var _ da.Vault = (*MemoryVault)(nil)
