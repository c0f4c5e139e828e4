package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// validateGlobPatterns checks that all patterns are valid filepath.Match patterns.
func validateGlobPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// loadPatternFile reads glob patterns from a file, one per line.
// Blank lines and lines starting with '#' are ignored; surrounding
// whitespace is trimmed.
func loadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// mergePatterns combines flag-supplied patterns with those from an optional
// pattern file and validates the result.
func mergePatterns(flagPatterns []string, file string) ([]string, error) {
	patterns := append([]string(nil), flagPatterns...)
	if file != "" {
		fromFile, err := loadPatternFile(file)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, fromFile...)
	}
	if err := validateGlobPatterns(patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}
