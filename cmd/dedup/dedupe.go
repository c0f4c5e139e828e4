package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/denizariyan/dedup/internal/cache"
	"github.com/denizariyan/dedup/internal/linker"
	"github.com/denizariyan/dedup/internal/matcher"
	"github.com/denizariyan/dedup/internal/report"
	"github.com/denizariyan/dedup/internal/scanner"
	"github.com/denizariyan/dedup/internal/screener"
	"github.com/denizariyan/dedup/internal/verifier"
	"github.com/denizariyan/dedup/internal/workpool"
)

const (
	formatHuman = "human"
	formatJSON  = "json"
	formatQuiet = "quiet"

	actionNone           = "none"
	actionReportExitCode = "report-exit-code"
	actionHardlink       = "hardlink"
)

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// validateRoot resolves the scan root to an absolute path and verifies it is
// an existing directory. Validation failures are fatal; per-entry errors
// during the scan itself are not.
func validateRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", abs)
	}
	return abs, nil
}

// runDedup executes the pipeline: scan → screen → verify → report → link.
//
// Errors returned here are fatal (invalid configuration, unreadable root)
// and map to exit code 1 via cobra. Non-fatal per-file errors flow through
// the shared error channel to stderr without stopping the run.
func runDedup(path string, opts *options) error {
	switch opts.format {
	case formatHuman, formatJSON, formatQuiet:
	default:
		return fmt.Errorf("invalid --format: %q (want human, json or quiet)", opts.format)
	}
	switch opts.action {
	case actionNone, actionReportExitCode, actionHardlink:
	default:
		return fmt.Errorf("invalid --action: %q (want none, report-exit-code or hardlink)", opts.action)
	}
	if opts.jobs < 1 {
		return fmt.Errorf("invalid --jobs: %d (must be at least 1)", opts.jobs)
	}

	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	var maxSize int64
	if opts.maxSizeStr != "" {
		maxSize, err = parseSize(opts.maxSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		if maxSize < minSize {
			return fmt.Errorf("--max-size (%d) is below --min-size (%d)", maxSize, minSize)
		}
	}

	includes, err := mergePatterns(opts.includes, opts.includeFile)
	if err != nil {
		return fmt.Errorf("invalid --include: %w", err)
	}
	excludes, err := mergePatterns(opts.excludes, opts.excludeFile)
	if err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}
	match, err := matcher.New(includes, excludes)
	if err != nil {
		return err
	}

	root, err := validateRoot(path)
	if err != nil {
		return err
	}

	// Progress goes to stderr and would corrupt machine-readable output
	showProgress := opts.format == formatHuman && !opts.noProgress

	errors := make(chan error, 100)
	go drainErrors(errors)
	defer close(errors)

	// Phase 1: Scan filesystem
	files := scanner.New(root, minSize, maxSize, match, opts.jobs, showProgress, errors).Run()

	// Phase 2: Screen for duplicate candidates
	candidates := screener.New(files, showProgress).Run()

	// Phase 3: Verify candidates by content hashing
	digestCache, err := cache.Open(opts.cacheFile)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = digestCache.Close() }()

	pool, err := workpool.New(opts.jobs)
	if err != nil {
		return err
	}
	defer pool.Close()

	confirmed := verifier.New(candidates, pool, showProgress, errors, digestCache).Run()

	// Phase 4: Assemble and render the report
	rep := report.Assemble(confirmed, len(files))
	if err := renderReport(rep, opts); err != nil {
		return err
	}

	// Phase 5: Act on duplicates
	switch opts.action {
	case actionReportExitCode:
		if rep.HasDuplicates() {
			opts.exitCode = 1
		}
	case actionHardlink:
		summary := linker.New(confirmed, opts.dryRun, opts.verbose, showProgress, errors).Run()
		renderSummary(summary, opts)
		if summary.Failed > 0 {
			opts.exitCode = 1
		}
	}

	return nil
}
