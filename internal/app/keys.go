package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"da-go/internal/config"
	"da-go/internal/database"
	"da-go/internal/encryption"
	"da-go/internal/escrow"
	"da-go/internal/vault"
)

// Metadata names for the key files kept in the vault next to the register.
const (
	publicKeyName  = "public_key"
	privateKeyName = "private_key"
)

// SetupKeys generates the escrow key pair and, when a vault is configured,
// stores both key files there. The private key is only ever stored sealed
// with the passphrase.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return err
	}
	if _, ok := enc.(*encryption.AgeEncryptor); !ok || len(cfg.Vaults) == 0 {
		return nil
	}

	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	for name, path := range map[string]string{
		publicKeyName:  cfg.Encryption.PublicKeyPath,
		privateKeyName: cfg.Encryption.PrivateKeyPath,
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if err := v.PutMetadata(cfg.HostID, name, bytes.NewReader(data), int64(len(data)), 1); err != nil {
			return fmt.Errorf("storing %s in vault: %w", name, err)
		}
	}
	return nil
}

// RestoreRegister replaces the local sqlite register with the escrowed
// snapshot. It works without a DAApp because a register that is behind
// its snapshot keeps the app from starting.
func RestoreRegister(cfg *config.Config, passphrase string) (int64, error) {
	if cfg.Database.Type != "sqlite" {
		return 0, fmt.Errorf("register type %q cannot be restored", cfg.Database.Type)
	}
	if len(cfg.Vaults) == 0 {
		return 0, errors.New("no vault configured")
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}
	decrypt, err := enc.Unlock(passphrase)
	if err != nil {
		return 0, err
	}
	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	esc := escrow.New(v, enc, nil)

	version, err := esc.SnapshotVersion(cfg.HostID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, errors.New("no register snapshot in the vault")
	}

	dest := database.RegisterPath(cfg.Database, cfg.HostID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".restore-*.db")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := esc.RetrieveSnapshot(cfg.HostID, tmp, decrypt); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("retrieving register snapshot: %w", err)
	}
	if err := closeSynced(tmp); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("replacing register: %w", err)
	}
	return version, nil
}

func closeSynced(f *os.File) error {
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return fmt.Errorf("syncing %s: %w", f.Name(), syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", f.Name(), closeErr)
	}
	return nil
}
