package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("test-host-abc", "/home/user/.local/share/da")
	original.LogLevel = "debug"
	original.Accession.Algorithm = "SHA-256"
	original.Accession.Workers = 4
	original.Accession.Collision = "fail"
	original.Accession.SkipHidden = true
	original.Fixity.Workers = 2
	original.Filesystem.Ignore = []string{"Thumbs.db", ".DS_Store"}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Accession != original.Accession {
		t.Errorf("Accession = %+v, want %+v", got.Accession, original.Accession)
	}
	if got.Fixity.Workers != 2 {
		t.Errorf("Fixity.Workers = %d, want 2", got.Fixity.Workers)
	}
	if len(got.Vaults) != 1 || got.Vaults[0].FSVaultRoot != original.Vaults[0].FSVaultRoot {
		t.Errorf("Vaults = %+v, want %+v", got.Vaults, original.Vaults)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Errorf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestManager_Read_UnknownKey(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("host_id = \"h\"\n[accession]\nalgorythm = \"MD5\"\n"))
	if err == nil || !strings.Contains(err.Error(), "accession.algorythm") {
		t.Errorf("Read() error = %v, want unknown key accession.algorythm", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/da")

	if cfg.LogDir != "/data/da/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/da/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/da/keys/da.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/da/keys/da.pub")
	}
	if cfg.Database.DataDir != "/data/da/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/da/db")
	}
	if cfg.Accession.Algorithm != "MD5" {
		t.Errorf("Accession.Algorithm = %q, want MD5", cfg.Accession.Algorithm)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing host id", func(c *Config) { c.HostID = "" }, "HostID"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"bad algorithm", func(c *Config) { c.Accession.Algorithm = "CRC32" }, "Algorithm"},
		{"negative workers", func(c *Config) { c.Fixity.Workers = -1 }, "Workers"},
		{"bad collision", func(c *Config) { c.Accession.Collision = "rename" }, "Collision"},
		{"filesystem vault without root", func(c *Config) { c.Vaults[0].FSVaultRoot = "" }, "FSVaultRoot"},
		{"unknown vault type", func(c *Config) { c.Vaults[0].Type = "s3" }, "Type"},
		{"sqlite without data dir", func(c *Config) { c.Database.DataDir = "" }, "DataDir"},
		{"age without keys", func(c *Config) { c.Encryption.PublicKeyPath = "" }, "PublicKeyPath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("h", "/data/da")
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}

	t.Run("none encryption needs no keys", func(t *testing.T) {
		cfg := NewConfig("h", "/data/da")
		cfg.Encryption = EncryptionConfig{Type: "none"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "da.toml")
		if err := Init(path, NewConfig("h1", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "da.toml")
		if err := Init(path, NewConfig("h1", dir)); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, NewConfig("h1", dir)); !errors.Is(err, ErrExists) {
			t.Fatalf("second Init() error = %v, want ErrExists", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "da.toml")
		if err := Init(path, NewConfig("", "/x")); err == nil {
			t.Fatal("Init() error = nil, want validation error")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("config written despite validation error: %v", err)
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "da.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}
		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/da.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
