package hash

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func expectedHex(data []byte) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(data))
	return hex.EncodeToString(buf)
}

func TestHashFile_Content(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "notes.txt")

	content := []byte("backup me")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	sum, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	if sum != expectedHex(content) {
		t.Errorf("Hash mismatch: expected %s, got %s", expectedHex(content), sum)
	}
}

func TestHashReader_SpansBuffers(t *testing.T) {
	// Three and a bit buffers' worth, so the copy loop runs several times.
	data := bytes.Repeat([]byte("0123456789abcdef"), (3*bufferSize)/16+7)

	sum, err := HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashReader failed: %v", err)
	}

	if sum != expectedHex(data) {
		t.Errorf("Hash mismatch: expected %s, got %s", expectedHex(data), sum)
	}
}

func TestHashReader_MatchesHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "same.txt")
	content := "identical bytes"

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	fromFile, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	fromReader, err := HashReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("HashReader failed: %v", err)
	}

	if fromFile != fromReader {
		t.Errorf("Expected %s, got %s", fromFile, fromReader)
	}
}

func TestHashFile_NonExistent(t *testing.T) {
	_, err := HashFile("/nonexistent/file.txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestHashFile_DifferentContent(t *testing.T) {
	tmpDir := t.TempDir()
	a := filepath.Join(tmpDir, "a")
	b := filepath.Join(tmpDir, "b")
	if err := os.WriteFile(a, []byte("one"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := os.WriteFile(b, []byte("two"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	sumA, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	sumB, err := HashFile(b)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	if sumA == sumB {
		t.Error("Different content should hash differently")
	}
}

func TestXXHashFunc(t *testing.T) {
	out, err := XXHashFunc([]byte("leaf"))
	if err != nil {
		t.Fatalf("XXHashFunc failed: %v", err)
	}

	if len(out) != 8 {
		t.Fatalf("Expected 8 bytes, got %d", len(out))
	}
	if hex.EncodeToString(out) != expectedHex([]byte("leaf")) {
		t.Error("XXHashFunc should be big-endian xxHash64")
	}
}

func TestNew_StreamingMatchesHashReader(t *testing.T) {
	content := []byte(strings.Repeat("stream", 10000))

	h := New()
	for chunk := range slices.Chunk(content, 4096) {
		h.Write(chunk)
	}

	want, err := HashReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("HashReader failed: %v", err)
	}
	if got := Hex(h); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if want != expectedHex(content) {
		t.Errorf("Expected %s, got %s", expectedHex(content), want)
	}
}
