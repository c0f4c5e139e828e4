// Package matcher compiles include/exclude glob patterns into a single
// path predicate consumed by the scanner.
//
// Matching semantics follow filepath.Match over the path's base name, with a
// full-path attempt first so patterns containing separators also work.
// A file passes when it matches at least one include pattern (if any are
// configured) and no exclude pattern.
package matcher

import (
	"fmt"
	"path/filepath"
)

// Matcher is a compiled include/exclude predicate over file paths.
// The zero value (and nil) matches everything.
type Matcher struct {
	includes []string
	excludes []string
}

// New validates the given patterns and returns a Matcher.
// Invalid patterns are a fatal configuration error, reported before any
// filesystem work starts.
func New(includes, excludes []string) (*Matcher, error) {
	for _, pattern := range append(append([]string{}, includes...), excludes...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return &Matcher{includes: includes, excludes: excludes}, nil
}

// MatchFile reports whether a file path passes the include/exclude rules.
func (m *Matcher) MatchFile(path string) bool {
	if m == nil {
		return true
	}
	if matchesAny(m.excludes, path) {
		return false
	}
	if len(m.includes) == 0 {
		return true
	}
	return matchesAny(m.includes, path)
}

// SkipDir reports whether a directory should be pruned from traversal.
// Only exclude patterns apply to directories: include patterns select files,
// so directories must still be descended into.
func (m *Matcher) SkipDir(path string) bool {
	if m == nil {
		return false
	}
	return matchesAny(m.excludes, path)
}

// matchesAny tries each pattern against the full path first, then against
// the base name, so both "backup/*.bak" and "*.bak" behave as expected.
func matchesAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
