package hash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// HashFile returns the xxHash64 hex digest of a file's content.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return HashReader(file)
}

// HashReader streams r into xxHash64 and returns the hex digest.
func HashReader(r io.Reader) (string, error) {
	h := New()
	buf := make([]byte, bufferSize)

	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	return Hex(h), nil
}

// New returns an empty streaming digest, for hashing content as it is written elsewhere.
func New() *xxhash.Digest {
	return xxhash.New()
}

// Hex formats the current sum of h the way HashFile does.
func Hex(h *xxhash.Digest) string {
	return hex.EncodeToString(h.Sum(nil))
}

// XXHashFunc adapts xxHash64 to the go-merkletree hash function signature.
func XXHashFunc(data []byte) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(data))
	return buf, nil
}
