// Package linker replaces confirmed duplicate files with hardlinks.
//
// # Processing
//
//	Input: []types.DuplicateGroup (confirmed, byte-identical members)
//	    │
//	    ├──► For each group:
//	    │        │
//	    │        ├──► Select the original: shortest path, ties broken
//	    │        │    lexicographically (deterministic)
//	    │        │
//	    │        ├──► Skip the original's sibling group (same inode already)
//	    │        │
//	    │        └──► For every other member: safety-check, then replace
//	    │             atomically via temp link + rename
//	    │
//	    └──► Output: Summary with per-file Results
//
// Each duplicate file moves through pending → linking → linked/failed (or
// → simulated in dry-run). The linking window is exactly the temp-link +
// rename sequence in CreateHardlink; it is never observable after Run
// returns.
//
// # Safety
//
//   - An advisory flock and an mtime comparison against the scanned metadata
//     catch files that changed hands since hashing; those are skipped.
//   - Replacement never unlinks the duplicate first: the rename is the
//     commit point, so interruption can't leave a path missing.
//   - Cross-device groups (EXDEV) fail per-file and the run continues;
//     hardlinks are filesystem-local by construction.
//
// Groups are processed sequentially: the work is I/O bound and each
// replacement is a pair of metadata operations, so fan-out buys little.
package linker

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/denizariyan/dedup/internal/progress"
	"github.com/denizariyan/dedup/internal/types"
)

// Linker replaces duplicate files with hardlinks to a retained original.
//
// The linker is designed for single-use: create with New(), call Run() once.
type Linker struct {
	groups       []types.DuplicateGroup
	dryRun       bool // Record intended actions without touching the filesystem
	verbose      bool // Print each replacement to stdout
	showProgress bool
	errCh        chan error
}

// New creates a Linker for the confirmed duplicate groups.
func New(groups []types.DuplicateGroup, dryRun, verbose, showProgress bool, errCh chan error) *Linker {
	return &Linker{
		groups:       groups,
		dryRun:       dryRun,
		verbose:      verbose,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// stats tracks linking progress.
type stats struct {
	totalFiles     int
	processedFiles int
	totalSets      int
	processedSets  int
	savedBytes     int64
	startTime      time.Time
}

func (s *stats) String() string {
	pct := 0.0
	if s.totalFiles > 0 {
		pct = float64(s.processedFiles) / float64(s.totalFiles) * 100
	}
	return fmt.Sprintf("Linked %d/%d files in %d/%d sets (%.0f%%), saved %s in %.1fs",
		s.processedFiles, s.totalFiles,
		s.processedSets, s.totalSets,
		pct,
		humanize.IBytes(uint64(s.savedBytes)),
		time.Since(s.startTime).Seconds())
}

// countTargets counts files to be replaced: every path outside the
// original's sibling group, across all groups.
func (l *Linker) countTargets() int {
	total := 0
	for _, g := range l.groups {
		orig := g.Original()
		for _, siblings := range g.Siblings.Items() {
			if siblings.First().SameInode(orig) {
				continue
			}
			total += siblings.Len()
		}
	}
	return total
}

// Run executes replacement on all duplicate groups and returns the Summary.
//
// Per group: select the original, skip members already sharing its inode
// (pre-existing hardlinks are no-ops), replace the rest one at a time.
// Failures are per-file; the run always continues.
func (l *Linker) Run() *Summary {
	bar := progress.New(l.showProgress, -1)
	st := &stats{totalFiles: l.countTargets(), totalSets: len(l.groups), startTime: time.Now()}
	bar.Describe(st)

	summary := &Summary{}

	for _, g := range l.groups {
		if g.Siblings.Len() < 2 {
			continue
		}

		orig := g.Original()

		for _, siblings := range g.Siblings.Items() {
			// Already hardlinked to the original: nothing to reclaim
			if siblings.First().SameInode(orig) {
				continue
			}

			for _, target := range siblings.Items() {
				result := l.linkFile(orig, target)
				summary.Results = append(summary.Results, result)

				switch result.Action {
				case ActionLinked, ActionSimulated:
					summary.Linked++
					summary.SavedBytes += result.BytesSaved
					st.savedBytes += result.BytesSaved
					st.processedFiles++
				case ActionSkipped:
					summary.Skipped++
					l.sendError(fmt.Errorf("%s: %w", target.Path, result.Err))
				case ActionFailed:
					summary.Failed++
					l.sendError(fmt.Errorf("%s: %w", target.Path, result.Err))
				}

				if l.verbose && result.Err == nil {
					fmt.Fprintf(os.Stderr, "\r\033[K") // Clear progress line
					_, _ = fmt.Fprintln(os.Stdout, result)
				}
				bar.Describe(st)
			}
		}

		st.processedSets++
		bar.Describe(st)
	}

	bar.Finish(st)
	return summary
}

// linkFile replaces target with a hardlink to orig.
//
// Safety checks before mutating:
//   - Exclusive advisory lock on target; a locked file is in use, skip it
//   - Target mtime must match the scanned metadata; a modified file may no
//     longer be a duplicate, skip it
//
// Dry-run passes the same checks, then records the intended action, so its
// output predicts what a live run would attempt.
func (l *Linker) linkFile(orig, target *types.FileInfo) *Result {
	f, err := os.Open(target.Path)
	if err != nil {
		return &Result{Original: orig.Path, Path: target.Path, Action: ActionSkipped, Err: err}
	}
	defer func() { _ = f.Close() }()

	// Lock is released when the file is closed (deferred above)
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return &Result{
			Original: orig.Path,
			Path:     target.Path,
			Action:   ActionSkipped,
			Err:      errors.New("file in use (locked by another process)"),
		}
	}

	info, err := f.Stat()
	if err != nil {
		return &Result{Original: orig.Path, Path: target.Path, Action: ActionSkipped, Err: err}
	}
	if !info.ModTime().Equal(target.ModTime) {
		return &Result{
			Original: orig.Path,
			Path:     target.Path,
			Action:   ActionSkipped,
			Err:      errors.New("file modified since scan"),
		}
	}

	if l.dryRun {
		return &Result{
			Original:   orig.Path,
			Path:       target.Path,
			Action:     ActionSimulated,
			BytesSaved: target.Size,
		}
	}

	if err := CreateHardlink(orig.Path, target.Path); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			err = fmt.Errorf("cannot hardlink across filesystems: %w", err)
		}
		return &Result{Original: orig.Path, Path: target.Path, Action: ActionFailed, Err: err}
	}

	return &Result{
		Original:   orig.Path,
		Path:       target.Path,
		Action:     ActionLinked,
		BytesSaved: target.Size,
	}
}

// sendError sends an error to the errors channel if it's not nil.
func (l *Linker) sendError(err error) {
	if l.errCh != nil {
		l.errCh <- err
	}
}
