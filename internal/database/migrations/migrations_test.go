package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	// A single connection keeps the in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUp_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	for _, table := range []string{"operations", "accessions", "fixity_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestCheck(t *testing.T) {
	db := openTestDB(t)

	if err := Check(db); !errors.Is(err, ErrNoVersion) {
		t.Fatalf("Check() before Up = %v, want ErrNoVersion", err)
	}
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := Check(db); err != nil {
		t.Errorf("Check() after Up = %v, want nil", err)
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		if err := Up(db); err != nil {
			t.Fatalf("Up() #%d error = %v", i+1, err)
		}
	}
	if err := Check(db); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestLatest(t *testing.T) {
	v, err := Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if v < 1 {
		t.Errorf("Latest() = %d, want >= 1", v)
	}
}
