package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"da-go/internal/da"
)

// testMagic marks output of TestEncryptor so "encrypted" bytes differ from
// plaintext while staying deterministic.
var testMagic = []byte("DA-TEST\n")

// TestEncryptor is a reversible stand-in for tests. It needs no keys and
// accepts any passphrase.
type TestEncryptor struct {
	setups int
}

var _ da.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setups++
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(string) (da.DecryptionContext, error) {
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext strips the TestEncryptor header.
type TestDecryptionContext struct{}

var _ da.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	head := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, head); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(head, testMagic) {
		return errors.New("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
