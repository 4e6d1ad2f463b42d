package compare

import (
	"fmt"
	"sort"
	"strings"
)

type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Modified ChangeType = "MODIFIED"
	Deleted  ChangeType = "DELETED"
)

type Change struct {
	Type    ChangeType
	Path    string
	OldHash string
	NewHash string
}

// Result lists how a current manifest differs from a saved one.
type Result struct {
	Added    []Change
	Modified []Change
	Deleted  []Change
}

func (r *Result) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Deleted) > 0
}

// Compare diffs two path -> content hash manifests. saved is the reference (the archive),
// current is what is on disk now.
func Compare(saved, current map[string]string) *Result {
	result := &Result{
		Added:    make([]Change, 0),
		Modified: make([]Change, 0),
		Deleted:  make([]Change, 0),
	}

	for path, newHash := range current {
		oldHash, exists := saved[path]
		switch {
		case !exists:
			result.Added = append(result.Added, Change{Type: Added, Path: path, NewHash: newHash})
		case oldHash != newHash:
			result.Modified = append(result.Modified, Change{Type: Modified, Path: path, OldHash: oldHash, NewHash: newHash})
		}
	}

	for path, oldHash := range saved {
		if _, exists := current[path]; !exists {
			result.Deleted = append(result.Deleted, Change{Type: Deleted, Path: path, OldHash: oldHash})
		}
	}

	for _, changes := range [][]Change{result.Added, result.Modified, result.Deleted} {
		sort.Slice(changes, func(i, j int) bool {
			return changes[i].Path < changes[j].Path
		})
	}

	return result
}

func FormatReport(result *Result) string {
	if !result.HasChanges() {
		return "No changes detected."
	}

	var b strings.Builder
	b.WriteString("Changes detected:\n\n")

	if len(result.Added) > 0 {
		fmt.Fprintf(&b, "ADDED (%d files):\n", len(result.Added))
		for _, change := range result.Added {
			fmt.Fprintf(&b, "  + %s (hash: %s)\n", change.Path, change.NewHash)
		}
		b.WriteString("\n")
	}

	if len(result.Modified) > 0 {
		fmt.Fprintf(&b, "MODIFIED (%d files):\n", len(result.Modified))
		for _, change := range result.Modified {
			fmt.Fprintf(&b, "  ~ %s (archived: %s, current: %s)\n", change.Path, change.OldHash, change.NewHash)
		}
		b.WriteString("\n")
	}

	if len(result.Deleted) > 0 {
		fmt.Fprintf(&b, "DELETED (%d files):\n", len(result.Deleted))
		for _, change := range result.Deleted {
			fmt.Fprintf(&b, "  - %s (hash: %s)\n", change.Path, change.OldHash)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Summary: %d added, %d modified, %d deleted",
		len(result.Added), len(result.Modified), len(result.Deleted))

	return b.String()
}
