package da

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints identifiers. Preservation identifiers and fixity run
// ids come from here; each call must return a value never returned before.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
