package walker

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

type pattern struct {
	glob    glob.Glob
	dirOnly bool
	full    bool // pattern contains a separator; match the whole relative path
}

// Matcher decides which entries a walk skips.
//
// A pattern is matched against the entry's base name, or against its full relative path
// when the pattern contains a "/". A trailing "/" restricts the pattern to directories.
type Matcher struct {
	patterns []pattern
}

func NewMatcher(exclusions []string) (*Matcher, error) {
	m := &Matcher{patterns: make([]pattern, 0, len(exclusions))}
	for _, raw := range exclusions {
		p := pattern{}
		expr := raw
		if strings.HasSuffix(expr, "/") {
			p.dirOnly = true
			expr = strings.TrimSuffix(expr, "/")
		}
		if expr == "" {
			continue
		}
		p.full = strings.Contains(expr, "/")

		g, err := glob.Compile(expr, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", raw, err)
		}
		p.glob = g
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Match reports whether relPath (slash separated) is excluded.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	base := path.Base(relPath)
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.full {
			subject = relPath
		}
		if p.glob.Match(subject) {
			return true
		}
	}
	return false
}
