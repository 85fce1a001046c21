//go:build !windows

package fs

import "da-go/internal/da"

// TimestampPreserver is a no-op here: creation time cannot be set through
// any portable call on these platforms.
type TimestampPreserver struct{}

// NewTimestampPreserver returns the platform's extended timestamp preserver.
func NewTimestampPreserver() *TimestampPreserver { return &TimestampPreserver{} }

func (*TimestampPreserver) PreserveExtendedTimestamps(string, da.FileTimes) bool { return false }

var _ da.TimestampPreserver = (*TimestampPreserver)(nil)
