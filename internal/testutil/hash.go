package testutil

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Hex returns the MD5 digest of data as lowercase hex, the form
// manifests record by default.
func MD5Hex(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}
