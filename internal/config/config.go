package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"da-go/internal/checksum"
)

// Config represents the main configuration for da.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // debug, info (default), warn or error
	Accession  AccessionConfig  `toml:"accession"`
	Fixity     FixityConfig     `toml:"fixity"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// AccessionConfig holds the defaults for `da accession`.
type AccessionConfig struct {
	Algorithm  string `toml:"algorithm"`  // MD5 (default), SHA-256, SHA-512 or BLAKE3
	Workers    int    `toml:"workers"`    // 0 means one per CPU
	Collision  string `toml:"collision"`  // "overwrite" (default) or "fail"
	Originator string `toml:"originator"` // recorded in each file's fixity block
	SkipHidden bool   `toml:"skip_hidden"`
}

// FixityConfig holds the defaults for `da fixity`.
type FixityConfig struct {
	Workers int `toml:"workers"` // 0 means one per CPU
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// EncryptionConfig holds paths to the age key pair used for escrow.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "none" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for an escrow vault.
// Type selects which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory" or "filesystem"
	Name string `toml:"name"`

	// FSVaultRoot is only used when Type == "filesystem".
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the accession register.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a Config with default sections rooted at baseDir.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:   hostID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Accession: AccessionConfig{
			Algorithm:  string(checksum.Default),
			Collision:  "overwrite",
			Originator: "da",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "da.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "da.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.HostID, validation.Required),
		validation.Field(&c.LogLevel, validation.In("", "debug", "info", "warn", "error")),
		validation.Field(&c.Accession),
		validation.Field(&c.Fixity),
		validation.Field(&c.Vaults),
		validation.Field(&c.Encryption),
		validation.Field(&c.Database),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks the accession defaults.
func (c AccessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Algorithm, validation.By(func(v any) error {
			_, err := checksum.ParseAlgorithm(v.(string))
			return err
		})),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.Collision, validation.In("", "overwrite", "fail")),
	)
}

// Validate checks the fixity defaults.
func (c FixityConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// Validate checks the encryption section.
func (c EncryptionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.In("", "age", "none", "test")),
		validation.Field(&c.PublicKeyPath, validation.When(c.Type == "" || c.Type == "age", validation.Required)),
		validation.Field(&c.PrivateKeyPath, validation.When(c.Type == "" || c.Type == "age", validation.Required)),
	)
}

// Validate checks one vault entry.
func (c VaultConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In("memory", "filesystem")),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.FSVaultRoot, validation.When(c.Type == "filesystem", validation.Required)),
	)
}

// Validate checks the register section.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In("sqlite", "memory")),
		validation.Field(&c.DataDir, validation.When(c.Type == "sqlite", validation.Required)),
	)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Unknown keys are errors
// so a misspelt setting never silently falls back to its default.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates the Config at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return f.Close()
}

// ErrExists is returned by Init when a config file is already present.
var ErrExists = errors.New("config file already exists")

// Init validates cfg and writes it to path, refusing to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w at %s", ErrExists, path)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
