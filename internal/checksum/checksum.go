package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest algorithm. The string value is what gets written
// into the manifest's messageDigestAlgorithm field.
type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA256 Algorithm = "SHA-256"
	SHA512 Algorithm = "SHA-512"
	BLAKE3 Algorithm = "BLAKE3"
)

// Default is the algorithm used when none is configured. MD5 matches the
// historical manifests; it detects corruption, not deliberate tampering.
const Default = MD5

// bufferSize bounds memory per digest regardless of file size.
const bufferSize = 64 * 1024

// Algorithms returns every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA256, SHA512, BLAKE3}
}

// ParseAlgorithm maps a configured or recorded algorithm name to an Algorithm.
// Matching ignores case, dashes and underscores, so "md5", "sha256" and
// "SHA-256" are all accepted. An empty name yields Default.
func ParseAlgorithm(name string) (Algorithm, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch key {
	case "":
		return Default, nil
	case "md5":
		return MD5, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm: %q", name)
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %q", string(a))
	}
}

// HexLen returns the length of a hex-encoded digest for the algorithm.
func (a Algorithm) HexLen() int {
	switch a {
	case MD5:
		return 32
	case SHA256, BLAKE3:
		return 64
	case SHA512:
		return 128
	default:
		return 0
	}
}

func (a Algorithm) String() string { return string(a) }

// Digest is a hex-encoded checksum tagged with the algorithm that produced it.
type Digest struct {
	Algorithm Algorithm
	Value     string
}

// IsZero reports whether no digest was computed.
func (d Digest) IsZero() bool {
	return d.Value == ""
}

// Equal compares two digests. Hex case is ignored because older manifests
// were written by tools that emitted upper-case digests.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Value != "" && strings.EqualFold(d.Value, other.Value)
}

func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.Algorithm, d.Value)
}

// Validate checks that the value is well-formed hex of the expected length.
func (d Digest) Validate() error {
	if d.Algorithm.HexLen() == 0 {
		return fmt.Errorf("unsupported checksum algorithm: %q", string(d.Algorithm))
	}
	if len(d.Value) != d.Algorithm.HexLen() {
		return fmt.Errorf("%s digest has %d hex characters, want %d", d.Algorithm, len(d.Value), d.Algorithm.HexLen())
	}
	if _, err := hex.DecodeString(d.Value); err != nil {
		return fmt.Errorf("%s digest is not hex: %w", d.Algorithm, err)
	}
	return nil
}

// Sum streams r through the algorithm and returns the digest and the number
// of bytes read. A read failure is returned as-is; no partial digest is ever
// produced.
func Sum(r io.Reader, alg Algorithm) (Digest, int64, error) {
	h, err := alg.New()
	if err != nil {
		return Digest{}, 0, err
	}
	buf := make([]byte, bufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return Digest{}, n, fmt.Errorf("reading content: %w", err)
	}
	return Digest{Algorithm: alg, Value: hex.EncodeToString(h.Sum(nil))}, n, nil
}

// SumFile opens a file through open, digests it and closes it.
func SumFile(open func() (io.ReadCloser, error), alg Algorithm) (Digest, int64, error) {
	rc, err := open()
	if err != nil {
		return Digest{}, 0, err
	}
	defer rc.Close()
	return Sum(rc, alg)
}

// Bytes digests an in-memory buffer.
func Bytes(data []byte, alg Algorithm) (Digest, error) {
	h, err := alg.New()
	if err != nil {
		return Digest{}, err
	}
	h.Write(data)
	return Digest{Algorithm: alg, Value: hex.EncodeToString(h.Sum(nil))}, nil
}

// Writer is an io.Writer that digests everything written through it.
// It is used to hash a stream while it is being copied.
type Writer struct {
	alg Algorithm
	h   hash.Hash
	n   int64
}

// NewWriter returns a digesting writer for alg.
func NewWriter(alg Algorithm) (*Writer, error) {
	h, err := alg.New()
	if err != nil {
		return nil, err
	}
	return &Writer{alg: alg, h: h}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += int64(n)
	return n, err
}

// Digest returns the digest of everything written so far.
func (w *Writer) Digest() Digest {
	return Digest{Algorithm: w.alg, Value: hex.EncodeToString(w.h.Sum(nil))}
}

// Size returns the number of bytes written.
func (w *Writer) Size() int64 {
	return w.n
}
