// Package archive writes and verifies zip backups of directory trees.
//
// A backup is named <source basename>_<timestamp>.zip and placed in the backup root. It
// holds every regular file under the source, keyed by its slash-separated path relative to
// the source, plus an explicit "dir/" entry for every directory so empty directories
// survive a restore. Each file entry's comment is the xxHash64 hex of its content, which
// Verify uses to detect corruption and drift.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dirworker/internal/digest"
	"dirworker/internal/hash"
	"dirworker/internal/walker"
)

// TimestampLayout is the time format embedded in archive names.
const TimestampLayout = "20060102T150405.000000000"

// Callbacks lets callers observe a backup in progress. Nil fields are skipped.
type Callbacks struct {
	OnScanComplete func(files int, totalSize int64)
	OnFileArchived func(relPath string, size int64)
}

type Options struct {
	Exclude   []string
	Now       func() time.Time // defaults to time.Now
	Logger    *slog.Logger     // defaults to slog.Default()
	Callbacks Callbacks
}

type Result struct {
	Path   string
	Files  int
	Dirs   int
	Bytes  int64  // uncompressed content size
	Digest string // merkle root over the archived files
}

// Name returns the archive file name for source at time t.
func Name(source string, t time.Time) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	base := filepath.Base(abs)
	if base == string(filepath.Separator) || base == "." || base == "" {
		base = "root"
	}

	return fmt.Sprintf("%s_%s.zip", base, t.Format(TimestampLayout)), nil
}

// Create backs up source into a new archive under backupRoot, creating backupRoot if
// needed. The archive is opened with O_EXCL so an existing file is never overwritten, and
// it is removed again if anything fails part way.
func Create(source, backupRoot string, opts Options) (res *Result, err error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	absSource, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	absRoot, err := filepath.Abs(backupRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	entries, err := walker.Collect(absSource, walker.Options{
		Recursive:   true,
		IncludeDirs: true,
		Exclude:     opts.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source: %w", err)
	}
	entries = withoutNested(entries, absSource, absRoot)

	if cb := opts.Callbacks.OnScanComplete; cb != nil {
		files, size := 0, int64(0)
		for _, entry := range entries {
			if !entry.IsDir && entry.Mode.IsRegular() {
				files++
				size += entry.Size
			}
		}
		cb(files, size)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}

	name, err := Name(absSource, now())
	if err != nil {
		return nil, err
	}
	archivePath := filepath.Join(backupRoot, name)

	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
		if err != nil {
			os.Remove(archivePath)
		}
	}()

	res = &Result{Path: archivePath}
	manifest := make(map[string]string)

	zw := zip.NewWriter(out)
	for _, entry := range entries {
		switch {
		case entry.IsDir:
			header := &zip.FileHeader{
				Name:     entry.RelPath + "/",
				Method:   zip.Store,
				Modified: entry.ModTime,
			}
			header.SetMode(entry.Mode)
			if _, err := zw.CreateHeader(header); err != nil {
				zw.Close()
				return nil, fmt.Errorf("failed to add directory %s: %w", entry.RelPath, err)
			}
			res.Dirs++
		case !entry.Mode.IsRegular():
			logger.Warn("Skipping non-regular file", "path", entry.Path, "mode", entry.Mode.String())
		default:
			sum, n, err := addFile(zw, entry)
			if err != nil {
				zw.Close()
				return nil, err
			}
			manifest[entry.RelPath] = sum
			res.Files++
			res.Bytes += n
			if cb := opts.Callbacks.OnFileArchived; cb != nil {
				cb(entry.RelPath, n)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	closed = true
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	res.Digest, err = digest.Root(manifest)
	if err != nil {
		return nil, err
	}

	logger.Debug("Archive written", "path", archivePath, "files", res.Files, "dirs", res.Dirs, "bytes", res.Bytes)
	return res, nil
}

// addFile streams one file into the archive and returns its content hash and size. The
// hash is taken from the same bytes that are written, then stored as the entry comment;
// the zip writer emits comments with the central directory on Close.
func addFile(zw *zip.Writer, entry walker.Entry) (string, int64, error) {
	file, err := os.Open(entry.Path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", entry.Path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build header for %s: %w", entry.Path, err)
	}
	header.Name = entry.RelPath
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return "", 0, fmt.Errorf("failed to add %s: %w", entry.RelPath, err)
	}

	h := hash.New()
	n, err := io.Copy(io.MultiWriter(w, h), file)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write %s: %w", entry.RelPath, err)
	}

	sum := hash.Hex(h)
	header.Comment = sum
	return sum, n, nil
}

// withoutNested drops the backup root and everything below it when it sits inside the
// source, so earlier backups are not archived into later ones.
func withoutNested(entries []walker.Entry, absSource, absDir string) []walker.Entry {
	rel, err := filepath.Rel(absSource, absDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return entries
	}
	prefix := filepath.ToSlash(rel)

	kept := make([]walker.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.RelPath == prefix || strings.HasPrefix(entry.RelPath, prefix+"/") {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// isChecksumError reports a zip CRC mismatch on read.
func isChecksumError(err error) bool {
	return errors.Is(err, zip.ErrChecksum)
}
