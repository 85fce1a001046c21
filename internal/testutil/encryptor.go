package testutil

import (
	"da-go/internal/da"
	"da-go/internal/encryption"
)

// NewTestEncryptor returns the keyless reversible encryptor.
func NewTestEncryptor() da.Encryptor {
	return encryption.NewTestEncryptor()
}
