//go:build !linux

package fs

import "os"

func openNoAtime(path string) (*os.File, error) {
	return os.Open(path)
}
