package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"dirworker/internal/compare"
	"dirworker/internal/digest"
	"dirworker/internal/hash"
	"dirworker/internal/walker"
)

type VerifyOptions struct {
	Exclude []string
	Workers int // defaults to 2 * NumCPU
}

type VerifyResult struct {
	Changes       *compare.Result
	Corrupt       []string // entries whose content no longer matches the recorded hash
	ArchiveDigest string
	SourceDigest  string
}

// OK reports whether the archive is intact and still matches the source.
func (r *VerifyResult) OK() bool {
	return len(r.Corrupt) == 0 && !r.Changes.HasChanges()
}

// ReadManifest hashes every file entry of the archive at path. It returns
// relative path -> content hash plus the entries that fail their recorded hash or CRC.
func ReadManifest(path string) (map[string]string, []string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	manifest := make(map[string]string, len(r.File))
	var corrupt []string

	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}

		sum, err := hashEntry(f)
		if err != nil {
			if isChecksumError(err) {
				corrupt = append(corrupt, f.Name)
				continue
			}
			return nil, nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}

		if f.Comment != "" && f.Comment != sum {
			corrupt = append(corrupt, f.Name)
		}
		manifest[f.Name] = sum
	}

	sort.Strings(corrupt)
	return manifest, corrupt, nil
}

func hashEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return hash.HashReader(rc)
}

// Verify checks the archive at archivePath against the current contents of source.
func Verify(ctx context.Context, archivePath, source string, opts VerifyOptions) (*VerifyResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	archived, corrupt, err := ReadManifest(archivePath)
	if err != nil {
		return nil, err
	}

	absSource, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	absArchiveDir, err := filepath.Abs(filepath.Dir(archivePath))
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
	entries = withoutNested(entries, absSource, absArchiveDir)

	regular := make([]walker.Entry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir && entry.Mode.IsRegular() {
			regular = append(regular, entry)
		}
	}

	current, err := walker.HashFiles(ctx, regular, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to hash source: %w", err)
	}

	result := &VerifyResult{
		Changes: compare.Compare(archived, current),
		Corrupt: corrupt,
	}
	if result.ArchiveDigest, err = digest.Root(archived); err != nil {
		return nil, err
	}
	if result.SourceDigest, err = digest.Root(current); err != nil {
		return nil, err
	}

	return result, nil
}

// FormatReport renders a verify result for the terminal.
func FormatReport(result *VerifyResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Archive digest: %s\n", result.ArchiveDigest)
	fmt.Fprintf(&b, "Source digest:  %s\n\n", result.SourceDigest)

	if len(result.Corrupt) > 0 {
		fmt.Fprintf(&b, "CORRUPT (%d entries):\n", len(result.Corrupt))
		for _, name := range result.Corrupt {
			fmt.Fprintf(&b, "  ! %s\n", name)
		}
		b.WriteString("\n")
	}

	b.WriteString(compare.FormatReport(result.Changes))
	return b.String()
}
