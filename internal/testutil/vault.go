package testutil

import (
	"da-go/internal/encryption"
	"da-go/internal/escrow"
	"da-go/internal/vault"
)

// NewTestVault returns an empty in-memory vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// NewTestEscrow returns an escrow over a fresh in-memory vault using the
// reversible test encryptor, along with the vault for inspection.
func NewTestEscrow() (*escrow.Escrow, *vault.MemoryVault) {
	v := NewTestVault()
	return escrow.New(v, encryption.NewTestEncryptor(), nil), v
}
