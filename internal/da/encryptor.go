package da

import "io"

// Encryptor protects escrowed manifests and register snapshots.
// Encrypting needs only the public key, so accessioning never prompts.
// Decrypting needs the passphrase that unlocks the private key.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `da config init`.
	// Generates a key pair, stores the public key in plaintext, and encrypts
	// the private key with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext for the rest of the command.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the encryptor's keys are in place.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory. The unlocked
// key is never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
