package encryption

import (
	"fmt"
	"io"

	"da-go/internal/da"
)

// NoneEncryptor stores escrow copies in the clear, for vaults that are
// already protected some other way.
type NoneEncryptor struct{}

var _ da.Encryptor = NoneEncryptor{}

func (NoneEncryptor) Setup(string) error { return nil }

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (NoneEncryptor) Unlock(string) (da.DecryptionContext, error) { return NoneEncryptor{}, nil }

func (NoneEncryptor) IsConfigured() bool { return true }

// Decrypt copies r to w unchanged.
func (NoneEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
