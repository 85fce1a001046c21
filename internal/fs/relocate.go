package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"da-go/internal/checksum"
	"da-go/internal/da"
)

const copyBufferSize = 256 * 1024

// Relocate moves or copies src to dst. See da.FilesystemManager.
func (m *OSFilesystemManager) Relocate(src *da.Path, dst string, mode da.RelocationMode, alg checksum.Algorithm) (checksum.Digest, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return checksum.Digest{}, destinationError(err)
	}
	switch mode {
	case da.ModeMove:
		return moveFile(src, dst, alg)
	case da.ModeCopy:
		return copyFile(src, dst, alg)
	default:
		return checksum.Digest{}, fmt.Errorf("unknown relocation mode %q", mode)
	}
}

// moveFile renames within a device. Across devices it copies, checks the
// copy against the streamed source digest and only then removes the source.
func moveFile(src *da.Path, dst string, alg checksum.Algorithm) (checksum.Digest, error) {
	err := os.Rename(src.String(), dst)
	if err == nil {
		return checksum.Digest{}, nil
	}
	if _, serr := os.Lstat(src.String()); serr != nil {
		return checksum.Digest{}, fmt.Errorf("source vanished: %w", serr)
	}
	if !isCrossDevice(err) {
		return checksum.Digest{}, err
	}

	digest, err := copyFile(src, dst, alg)
	if err != nil {
		return checksum.Digest{}, err
	}
	copied, _, err := checksum.SumFile(func() (io.ReadCloser, error) { return openNoAtime(dst) }, alg)
	if err != nil {
		return checksum.Digest{}, destinationError(err)
	}
	if !copied.Equal(digest) {
		os.Remove(dst)
		return checksum.Digest{}, fmt.Errorf("copy to %s does not match source (%s != %s)", dst, copied.Value, digest.Value)
	}
	if err := os.Remove(src.String()); err != nil {
		// Keep exactly one copy: the source stays and the file is skipped.
		os.Remove(dst)
		return checksum.Digest{}, fmt.Errorf("removing source after copy: %w", err)
	}
	return digest, nil
}

// copyFile streams src into a temp file beside dst while digesting the
// source bytes, then renames it over dst. Read failures are source-side;
// everything that writes is destination-side.
func copyFile(src *da.Path, dst string, alg checksum.Algorithm) (checksum.Digest, error) {
	in, err := openNoAtime(src.String())
	if err != nil {
		return checksum.Digest{}, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.partial")
	if err != nil {
		return checksum.Digest{}, destinationError(err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (checksum.Digest, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return checksum.Digest{}, err
	}

	hw, err := checksum.NewWriter(alg)
	if err != nil {
		return fail(err)
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			hw.Write(buf[:n])
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return fail(destinationError(werr))
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fail(fmt.Errorf("reading %s: %w", src.String(), rerr))
		}
	}

	if err := tmp.Sync(); err != nil {
		return fail(destinationError(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return checksum.Digest{}, destinationError(err)
	}
	if info := src.Info(); info != nil {
		if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
			os.Remove(tmpPath)
			return checksum.Digest{}, destinationError(err)
		}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return checksum.Digest{}, destinationError(err)
	}
	return hw.Digest(), nil
}

func destinationError(err error) error {
	return fmt.Errorf("%w: %w", da.ErrDestinationWrite, err)
}
