package testutil

import (
	"testing"

	"da-go/internal/da"
	"da-go/internal/database"
)

// NewTestRegister opens an in-memory register with all migrations applied.
// It is closed when the test completes.
func NewTestRegister(t *testing.T) da.Register {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	reg := database.NewSQLiteRegisterFromDB(sqlDB, nil, nil)
	t.Cleanup(func() {
		reg.Close()
	})
	return reg
}
