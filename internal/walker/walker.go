package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dirworker/internal/hash"
)

// ErrNotDirectory is returned when the walk root is not a directory
var ErrNotDirectory = errors.New("not a directory")

type Entry struct {
	Path    string // root joined with RelPath
	RelPath string // slash separated, relative to the walk root
	IsDir   bool
	Size    int64 // zero for directories
	ModTime time.Time
	Mode    fs.FileMode
}

type Options struct {
	// Recursive descends into subdirectories.
	Recursive bool
	// IncludeDirs yields directory entries as well as files.
	IncludeDirs bool
	// Exclude holds glob patterns; see NewMatcher.
	Exclude []string
}

// Walk yields the entries under root lazily. Children of a directory come out in lexical
// order and a directory is always yielded before anything inside it. The first error ends
// the sequence.
func Walk(root string, opts Options) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("failed to stat %s: %w", root, err))
			return
		}
		if !info.IsDir() {
			yield(Entry{}, fmt.Errorf("%s: %w", root, ErrNotDirectory))
			return
		}

		matcher, err := NewMatcher(opts.Exclude)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		// Pending directories, as paths relative to root. "" is root itself.
		stack := []string{""}
		for len(stack) > 0 {
			rel := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			dir := filepath.Join(root, filepath.FromSlash(rel))
			children, err := os.ReadDir(dir)
			if err != nil {
				yield(Entry{}, fmt.Errorf("failed to read directory %s: %w", dir, err))
				return
			}

			var subdirs []string
			for _, d := range children {
				childRel := path.Join(rel, d.Name())
				if matcher.Match(childRel, d.IsDir()) {
					continue
				}

				info, err := d.Info()
				if err != nil {
					yield(Entry{}, fmt.Errorf("failed to stat %s: %w", filepath.Join(dir, d.Name()), err))
					return
				}

				entry := Entry{
					Path:    filepath.Join(dir, d.Name()),
					RelPath: childRel,
					IsDir:   d.IsDir(),
					ModTime: info.ModTime(),
					Mode:    info.Mode(),
				}

				if entry.IsDir {
					if opts.Recursive {
						subdirs = append(subdirs, childRel)
					}
					if !opts.IncludeDirs {
						continue
					}
				} else {
					entry.Size = info.Size()
				}

				if !yield(entry, nil) {
					return
				}
			}

			// Push in reverse so the lexically first subdirectory is read next.
			for i := len(subdirs) - 1; i >= 0; i-- {
				stack = append(stack, subdirs[i])
			}
		}
	}
}

// Collect drains a walk into a slice.
func Collect(root string, opts Options) ([]Entry, error) {
	entries := make([]Entry, 0)
	for entry, err := range Walk(root, opts) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HashFiles hashes the non-directory entries using up to numWorkers goroutines and returns
// RelPath -> xxhash hex. The first failure cancels the rest.
func HashFiles(ctx context.Context, entries []Entry, numWorkers int) (map[string]string, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var mu sync.Mutex
	hashes := make(map[string]string, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := hash.HashFile(entry.Path)
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Path, err)
			}
			mu.Lock()
			hashes[entry.RelPath] = sum
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return hashes, nil
}
